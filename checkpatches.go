package rocketfilter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/diff"
)

// FilePatchError reports that one side (or both) of a diff.FilePatch would
// not survive the configured keep/remove PatternSets.
type FilePatchError struct {
	FromFile string
	ToFile   string
}

func (e *FilePatchError) ErrorFiles() []string {
	if e == nil {
		return nil
	}
	switch {
	case e.FromFile != "" && e.ToFile != "":
		return []string{e.FromFile, e.ToFile}
	case e.FromFile != "":
		return []string{e.FromFile}
	case e.ToFile != "":
		return []string{e.ToFile}
	default:
		return nil
	}
}

func (e *FilePatchError) Error() string {
	errfs := make([]string, 0, 2)
	if e.FromFile != "" {
		errfs = append(errfs, fmt.Sprintf("invalid from path: %s", e.FromFile))
	}
	if e.ToFile != "" {
		errfs = append(errfs, fmt.Sprintf("invalid to path: %s", e.ToFile))
	}
	return strings.Join(errfs, "|")
}

// FilePatchCheckResult is the outcome of CheckFilePatchesAgainstFilter.
type FilePatchCheckResult struct {
	Errors []*FilePatchError
	// Inconclusive lists paths whose disposition depends on a predicate
	// this check has no commit/blob context to evaluate, so it could not
	// be confirmed either way.
	Inconclusive []string
}

func (f *FilePatchCheckResult) ErrorSlice() []error {
	if f == nil || len(f.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(f.Errors))
	for _, e := range f.Errors {
		errs = append(errs, e)
	}
	return errs
}

func (f *FilePatchCheckResult) ToError() error {
	errs := f.ErrorSlice()
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// wouldSurvive reports whether path would be admitted into a rewritten tree
// under the non-predicate rules of keep/remove. A match against a
// predicate-bearing rule can't be resolved without a real commit and blob
// to run the predicate against, so it is reported as inconclusive rather
// than guessed at.
func wouldSurvive(path string, keep, remove *PatternSet) (survive bool, inconclusive bool) {
	admitted := keep.Empty()
	if !admitted {
		if m := keep.Match(path); m != nil {
			if m.Rule.HasPredicate() {
				return false, true
			}
			admitted = true
		}
	}
	if !admitted {
		return false, false
	}

	if m := remove.Match(path); m != nil {
		if m.Rule.HasPredicate() {
			return false, true
		}
		return false, false
	}
	return true, false
}

// CheckFilePatchesAgainstFilter implements the --check-patches/
// --strict-check-patches supplemental feature (SPEC_FULL.md §12.1): given
// the file patches touched by some commit (Driver passes each non-root
// commit of the range in turn), it reports which touched paths would not survive the
// configured tree filter, so a caller can flag history that still
// references material the filter is about to drop.
func CheckFilePatchesAgainstFilter(filepatches []diff.FilePatch, keep, remove *PatternSet) *FilePatchCheckResult {
	r := &FilePatchCheckResult{}

	for _, afile := range filepatches {
		fromfile, tofile := afile.Files()

		fromfilename := ""
		if fromfile != nil {
			fromfilename = fromfile.Path()
		}
		tofilename := ""
		if tofile != nil {
			tofilename = tofile.Path()
		}

		var thiserr *FilePatchError
		if fromfile != nil {
			survive, inconclusive := wouldSurvive(fromfilename, keep, remove)
			switch {
			case inconclusive:
				r.Inconclusive = append(r.Inconclusive, fromfilename)
			case !survive:
				thiserr = &FilePatchError{FromFile: fromfilename}
			}
		}
		if tofile != nil {
			survive, inconclusive := wouldSurvive(tofilename, keep, remove)
			switch {
			case inconclusive:
				r.Inconclusive = append(r.Inconclusive, tofilename)
			case !survive:
				if thiserr == nil {
					thiserr = &FilePatchError{}
				}
				thiserr.ToFile = tofilename
			}
		}
		if thiserr != nil {
			r.Errors = append(r.Errors, thiserr)
		}
	}

	return r
}
