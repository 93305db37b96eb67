package scenario

import (
	"slices"
	"sort"
	"strings"

	"github.com/roach88/keyscrub/internal/report"
)

func checkTest(res *Result, tr TestResult, want *TestExpect) {
	compareKeys(res, tr.Name+": leftover", want.Leftover, keysWith(tr.Records, report.StatusLeftover))
	compareKeys(res, tr.Name+": cleaned", want.Cleaned, keysWith(tr.Records, report.StatusCleaned))
	compareKeys(res, tr.Name+": altered", want.Altered, keysWith(tr.Records, report.StatusAltered))
}

func checkSuite(res *Result, want *SuiteExpect) {
	compareKeys(res, "suite: new", want.New, keysWith(res.Suite, report.StatusNew))
	compareKeys(res, "suite: deleted", want.Deleted, keysWith(res.Suite, report.StatusDeleted))
	compareKeys(res, "suite: altered", want.Altered, keysWith(res.Suite, report.StatusAltered))

	final := make(map[string]report.Record, len(res.Keys))
	for _, r := range res.Keys {
		final[r.Key] = r
	}
	keys := make([]string, 0, len(want.Keys))
	for k := range want.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r, ok := final[k]
		switch {
		case !ok:
			res.failf("final: %s: missing, want %q", k, want.Keys[k])
		case r.Type != "string":
			res.failf("final: %s: type %s, want string", k, r.Type)
		case r.Value != want.Keys[k]:
			res.failf("final: %s: got %q, want %q", k, r.Value, want.Keys[k])
		}
	}
	for _, k := range want.Absent {
		if _, ok := final[k]; ok {
			res.failf("final: %s: present, want absent", k)
		}
	}
}

func keysWith(records []report.Record, status report.Status) []string {
	var keys []string
	for _, r := range records {
		if r.Status == status {
			keys = append(keys, r.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func compareKeys(res *Result, what string, want, got []string) {
	want = slices.Clone(want)
	sort.Strings(want)
	if slices.Equal(want, got) {
		return
	}
	res.failf("%s: got [%s], want [%s]", what, strings.Join(got, " "), strings.Join(want, " "))
}
