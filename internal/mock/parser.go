package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/memdump-analysis/pkg/model"
)

// Parser mocks parser.Parser.
type Parser struct {
	mock.Mock
}

func (m *Parser) Parse(ctx context.Context, reader io.Reader) (*model.ParseResult, error) {
	args := m.Called(ctx, reader)
	return first[*model.ParseResult](args), args.Error(1)
}

func (m *Parser) SupportedFormats() []string { return []string{"mock"} }

func (m *Parser) Name() string { return "mock" }

// ExpectParse makes the next Parse return result and err.
func (m *Parser) ExpectParse(result *model.ParseResult, err error) *mock.Call {
	return m.On("Parse", mock.Anything, mock.Anything).Return(result, err)
}
