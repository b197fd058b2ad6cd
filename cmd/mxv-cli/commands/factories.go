package commands

import (
	"bufio"
	"encoding/csv"
	"io"

	"github.com/mxverify/mxverify/cmd/mxv-cli/iterator"
)

func createTextIterator(r io.Reader) *iterator.CallbackIterator {
	scanner := bufio.NewScanner(r)

	return iterator.NewCallbackIterator(
		scanner.Scan,
		func() (string, error) {
			return scanner.Text(), nil
		},
		func() error {
			return scanner.Err()
		},
	)
}

func createCSVIterator(r io.Reader) *iterator.CallbackIterator {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	var lastError error
	var eof bool

	if checkSettings.CSV.skipRows > 0 {
		toSkip := checkSettings.CSV.skipRows
		for ; toSkip > 0; toSkip-- {
			_, err := reader.Read()
			if err == io.EOF {
				eof = true
				break
			}

			if err != nil {
				lastError = err
			}
		}
	}

	return iterator.NewCallbackIterator(
		func() bool {
			return !eof
		},
		func() (string, error) {
			record, err := reader.Read()
			if err == io.EOF {
				eof = true
				return "", nil
			}

			if err != nil {
				return "", err
			}

			if uint64(len(record)) > checkSettings.CSV.column {
				return record[checkSettings.CSV.column], nil
			}

			return "", nil
		}, func() error {
			return lastError
		},
	)
}
