package scenario

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/roach88/keyscrub/internal/report"
)

// WriteTranscript renders res as plain text: the records of every test,
// the suite end records, the final keys and the verdict.
func WriteTranscript(w io.Writer, res *Result) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", res.Scenario)
	for _, tr := range res.Tests {
		fmt.Fprintf(&buf, "\ntest %s\n", tr.Name)
		if err := writeRecords(&buf, tr.Records); err != nil {
			return err
		}
	}

	buf.WriteString("\nsuite\n")
	if err := writeRecords(&buf, res.Suite); err != nil {
		return err
	}

	buf.WriteString("\nkeys\n")
	if len(res.Keys) == 0 {
		buf.WriteString("(empty)\n")
	}
	for _, r := range res.Keys {
		value := r.Value
		if value == "" {
			value = `""`
		}
		fmt.Fprintf(&buf, "%s %s %s\n", r.Key, r.Type, value)
	}

	buf.WriteByte('\n')
	for _, f := range res.Failures {
		fmt.Fprintf(&buf, "FAIL %s\n", f)
	}
	if res.Pass() {
		buf.WriteString("result: pass\n")
	} else {
		buf.WriteString("result: fail\n")
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeRecords(buf *bytes.Buffer, records []report.Record) error {
	if len(records) == 0 {
		buf.WriteString("(no records)\n")
		return nil
	}
	return report.NewTextSink(buf).Report(context.Background(), records)
}
