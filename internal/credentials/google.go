package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// GoogleServiceAccount returns the service account key JSON used to reach the
// spreadsheet, read from path or, when the file is absent, from envVar.
func GoogleServiceAccount(path, envVar string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return checkServiceAccount(path, data)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if envVar != "" {
		if raw := os.Getenv(envVar); raw != "" {
			return checkServiceAccount(envVar, []byte(raw))
		}
	}

	return nil, &Error{
		Source: path,
		Reason: fmt.Sprintf("google service account key not found and %s is not set", envVar),
	}
}

func checkServiceAccount(source string, data []byte) ([]byte, error) {
	var probe struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &Error{Source: source, Reason: "invalid JSON: " + err.Error()}
	}
	if probe.Type != "service_account" || probe.ClientEmail == "" {
		return nil, &Error{Source: source, Reason: "not a service account key"}
	}
	return data, nil
}
