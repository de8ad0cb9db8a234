package memorydump

import (
	"fmt"
	"strconv"
	"strings"
)

// Bucket statistic names.
const (
	StatProportionalResident = "proportional_resident"
	StatPrivateDirtyResident = "private_dirty_resident"
	StatPrivateCleanResident = "private_clean_resident"
	StatSharedDirtyResident  = "shared_dirty_resident"
	StatSharedCleanResident  = "shared_clean_resident"
	StatSwapped              = "swapped"
)

// numStats is the number of statistics in a bucket.
const numStats = 6

// bucketAttr maps a statistic name to its short key in raw traces.
type bucketAttr struct {
	name string
	code string
}

// bucketAttrs is sorted by statistic name.
var bucketAttrs = [numStats]bucketAttr{
	{StatPrivateCleanResident, "pc"},
	{StatPrivateDirtyResident, "pd"},
	{StatProportionalResident, "pss"},
	{StatSharedCleanResident, "sc"},
	{StatSharedDirtyResident, "sd"},
	{StatSwapped, "sw"},
}

// StatNames returns the bucket statistic names in sorted order.
func StatNames() []string {
	names := make([]string, len(bucketAttrs))
	for i, attr := range bucketAttrs {
		names[i] = attr.name
	}
	return names
}

// StatCode returns the raw trace key of a statistic name.
func StatCode(name string) (string, bool) {
	for _, attr := range bucketAttrs {
		if attr.name == name {
			return attr.code, true
		}
	}
	return "", false
}

// Bucket accumulates the byte statistics of the regions assigned to one
// category path. The zero value is an empty bucket.
type Bucket struct {
	values [numStats]int64
}

// AddRegion adds the byte stats of one region. Missing keys count as zero.
// The bucket is left unchanged if any value fails to parse.
func (b *Bucket) AddRegion(byteStats map[string]string) error {
	var parsed [numStats]int64
	for i, attr := range bucketAttrs {
		raw, ok := byteStats[attr.code]
		if !ok {
			continue
		}
		v, err := parseHex(raw)
		if err != nil {
			return fmt.Errorf("byte stat %s: %w", attr.code, err)
		}
		parsed[i] = v
	}
	for i := range parsed {
		b.values[i] += parsed[i]
	}
	return nil
}

// GetValue returns the accumulated value of a statistic.
func (b *Bucket) GetValue(name string) (int64, error) {
	for i, attr := range bucketAttrs {
		if attr.name == name {
			return b.values[i], nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStat, name)
}

// Values returns a copy of all statistics keyed by name.
func (b *Bucket) Values() map[string]int64 {
	out := make(map[string]int64, len(bucketAttrs))
	for i, attr := range bucketAttrs {
		out[attr.name] = b.values[i]
	}
	return out
}

// String formats the bucket as MemoryBucket[pc=.., pd=.., ...].
func (b *Bucket) String() string {
	parts := make([]string, len(bucketAttrs))
	for i, attr := range bucketAttrs {
		parts[i] = fmt.Sprintf("%s=%d", attr.code, b.values[i])
	}
	return "MemoryBucket[" + strings.Join(parts, ", ") + "]"
}

// parseHex parses a base-16 integer, with or without a 0x prefix.
func parseHex(s string) (int64, error) {
	v := strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(v, "-") {
		neg, v = true, v[1:]
	} else {
		v = strings.TrimPrefix(v, "+")
	}
	v = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	n, err := strconv.ParseInt(v, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	if neg {
		n = -n
	}
	return n, nil
}
