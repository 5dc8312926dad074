package peers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeOrderByEmpty(t *testing.T) {
	got, err := SanitizeOrderBy("")
	assert.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSanitizeOrderByDefaultsToAscending(t *testing.T) {
	got, err := SanitizeOrderBy("version")
	assert.NoError(t, err)
	assert.Equal(t, "version asc", got)
}

func TestSanitizeOrderByNormalizesDirectionCase(t *testing.T) {
	got, err := SanitizeOrderBy("state DESC")
	assert.NoError(t, err)
	assert.Equal(t, "state desc", got)
}

func TestSanitizeOrderByRejectsUnknownColumn(t *testing.T) {
	_, err := SanitizeOrderBy("nethash desc")
	var unsortable ErrUnsortableField
	assert.ErrorAs(t, err, &unsortable)
}

func TestSanitizeOrderByRejectsTrailingClauses(t *testing.T) {
	cases := []string{
		"ip; DROP TABLE peers--",
		"ip asc; (SELECT 1)",
		"ip asc extra",
	}
	for _, c := range cases {
		_, err := SanitizeOrderBy(c)
		var unsortable ErrUnsortableField
		assert.ErrorAsf(t, err, &unsortable, "input: %q", c)
	}
}
