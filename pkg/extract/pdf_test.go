package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joliv/mira/pkg/extract"
)

func TestExtractTextRejectsGarbage(t *testing.T) {
	e := extract.NewPDFExtractor()

	_, err := e.ExtractText([]byte("not a pdf at all"))
	assert.Error(t, err)

	_, err = e.ExtractText(nil)
	assert.Error(t, err)
}
