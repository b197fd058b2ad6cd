package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestReportSummarizes(t *testing.T) {
	input := strings.Join([]string{
		`{"email":"a@example.org","valid":true,"verdict":"valid","version":1}`,
		`{"email":"b@example.org","valid":false,"verdict":"invalid","version":1}`,
		`{"email":"c@example.org","valid":null,"verdict":"unknown","version":1}`,
		``,
	}, "\n")

	var out bytes.Buffer
	reportCmd.SetIn(strings.NewReader(input))
	reportCmd.SetOut(&out)
	reportCmd.Run(reportCmd, nil)

	var stats ReportStats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("Expected a JSON summary, got %q (%v)", out.String(), err)
	}

	if stats.Passed != 1 || stats.Rejected != 1 || stats.Unknown != 1 {
		t.Errorf("Expected 1/1/1, got passed=%d rejected=%d unknown=%d", stats.Passed, stats.Rejected, stats.Unknown)
	}
}

func TestReportOnlyInvalid(t *testing.T) {
	input := strings.Join([]string{
		`{"email":"a@example.org","valid":true,"verdict":"valid","version":1}`,
		`{"email":"b@example.org","valid":false,"verdict":"invalid","version":1}`,
		``,
	}, "\n")

	reportSettings.OnlyInvalid = true
	defer func() {
		reportSettings.OnlyInvalid = false
	}()

	var out bytes.Buffer
	reportCmd.SetIn(strings.NewReader(input))
	reportCmd.SetOut(&out)
	reportCmd.Run(reportCmd, nil)

	decoder := json.NewDecoder(&out)

	var result CheckResult
	if err := decoder.Decode(&result); err != nil {
		t.Fatalf("Expected the rejected check first, got %v", err)
	}

	if result.Email != "b@example.org" {
		t.Errorf("Expected the rejected address, got %q", result.Email)
	}

	var stats ReportStats
	if err := decoder.Decode(&stats); err != nil {
		t.Fatalf("Expected a trailing summary, got %v", err)
	}

	if stats.Rejected != 1 {
		t.Errorf("Expected 1 rejected, got %d", stats.Rejected)
	}
}

func TestCheckCSVIterator(t *testing.T) {
	defer func() {
		checkSettings.CSV = csvOptions{}
	}()

	checkSettings.CSV.skipRows = 1
	checkSettings.CSV.column = 1

	input := strings.Join([]string{
		`id,email`,
		`1,john@example.org`,
		`2,jane@example.org`,
		``,
	}, "\n")

	it := createCSVIterator(strings.NewReader(input))

	var collected []string
	for it.Next() {
		v, err := it.Value()
		if err != nil {
			t.Fatalf("Unexpected iterator error %v", err)
		}

		if v != "" {
			collected = append(collected, v)
		}
	}

	if err := it.Close(); err != nil {
		t.Errorf("Unexpected close error %v", err)
	}

	want := []string{"john@example.org", "jane@example.org"}
	if len(collected) != len(want) {
		t.Fatalf("Expected %v, got %v", want, collected)
	}

	for i := range want {
		if collected[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, collected)
			break
		}
	}
}
