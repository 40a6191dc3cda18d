package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"codescope/internal/errors"
)

func requiredQuery(r *http.Request, name string) (string, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return "", errors.New(errors.BadArgument, "missing required parameter %q", name)
	}
	return value, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errors.BadArgument, "parameter %q must be an integer, got %q", name, raw)
	}
	return value, nil
}

func requiredIntQuery(r *http.Request, name string) (int, error) {
	raw, err := requiredQuery(r, name)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errors.BadArgument, "parameter %q must be an integer, got %q", name, raw)
	}
	return value, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.BadArgument, err, "invalid request body")
	}
	return nil
}
