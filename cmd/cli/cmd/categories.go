package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memdump-analysis/internal/memorydump"
)

var (
	treeFile string
	asYAML   bool
)

// categoriesCmd prints the category tree or classifies mapped file names.
var categoriesCmd = &cobra.Command{
	Use:   "categories [mapped-file...]",
	Short: "Print the category tree or classify mapped files",
	Long: `Without arguments, print the category tree used to classify mapped
memory. With arguments, print the category path each mapped file name is
classified into.`,
	RunE: runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)

	categoriesCmd.Flags().StringVar(&treeFile, "categories", "", "YAML category tree replacing the built-in one")
	categoriesCmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the tree as YAML, in the format --categories accepts")
}

func runCategories(cmd *cobra.Command, args []string) error {
	root := memorydump.RootCategory
	if treeFile != "" {
		loaded, err := memorydump.LoadCategoryTreeFile(treeFile)
		if err != nil {
			return err
		}
		root = loaded
	}

	out := cmd.OutOrStdout()

	if len(args) > 0 {
		classifier := memorydump.NewClassifier(root, len(args))
		for _, mappedFile := range args {
			fmt.Fprintf(out, "%s\t%s\n", mappedFile, memorydump.CategoryPath(classifier.Classify(mappedFile)))
		}
		return nil
	}

	if asYAML {
		return memorydump.EncodeCategoryTree(out, root)
	}

	memorydump.Walk(root, func(_ string, depth int, c *memorydump.Category) {
		line := strings.Repeat("  ", depth) + c.Name()
		if c.Pattern() != "" {
			line += "  ~ " + c.Pattern()
		}
		if c.Exclude() != "" {
			line += "  !~ " + c.Exclude()
		}
		fmt.Fprintln(out, line)
	})
	return nil
}
