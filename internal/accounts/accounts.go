// Package accounts loads the account records a batch is run over.
package accounts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// ErrNoAccounts is returned when a file parses but holds no records.
var ErrNoAccounts = errors.New("accounts: file contains no records")

// Load reads a JSON array of account records from path. "~" is expanded.
func Load(path string) ([]schemas.Account, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve accounts path '%s': %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file '%s': %w", expanded, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("accounts file '%s': %w", expanded, err)
	}
	return records, nil
}

// Decode parses a JSON array of account records. Surrounding whitespace on every field is
// trimmed; a record with no fields at all is skipped.
func Decode(r io.Reader) ([]schemas.Account, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoAccounts
	}

	var raw []schemas.Account
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}

	out := make([]schemas.Account, 0, len(raw))
	for _, a := range raw {
		a = trim(a)
		if a == (schemas.Account{}) {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrNoAccounts
	}
	return out, nil
}

func trim(a schemas.Account) schemas.Account {
	for _, f := range []*string{
		&a.Email, &a.Country, &a.City, &a.ZipCode, &a.State,
		&a.Address, &a.Mobile, &a.LastName, &a.Gender,
	} {
		*f = strings.TrimSpace(*f)
	}
	return a
}
