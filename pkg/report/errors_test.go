package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomyUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")

	cases := []struct {
		name string
		err  error
	}{
		{"download", &DownloadError{Source: "repo", Cause: cause}},
		{"store", &StoreError{Path: "/store", Cause: cause}},
		{"parse", &ParseError{Path: "profile.json", Cause: cause}},
		{"squash", &SquashError{Profile: "Bambu PLA", Cause: cause}},
		{"condition", &ConditionParseError{Expr: "a && (b", Cause: cause}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.err, cause)
			assert.Contains(t, c.err.Error(), "disk full")
		})
	}
}

func TestReconcileReportHasConflictsReflectsSlice(t *testing.T) {
	rep := NewReconcileReport()
	assert.False(t, rep.HasConflicts())

	rep.Conflicts = append(rep.Conflicts, ReconcileConflict{FilamentPath: "x"})
	assert.True(t, rep.HasConflicts())
}
