package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// JSONEncoder returns a body encoder for CallAPI.
func JSONEncoder(v interface{}) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		bb := new(bytes.Buffer)
		err := json.NewEncoder(bb).Encode(v)
		if err != nil {
			return nil, fmt.Errorf("while encoding value: %w", err)
		}
		return bb, nil
	}
}

// JSONDecoder returns a response decoder for CallAPI. An empty body leaves v
// untouched.
func JSONDecoder(v interface{}) func(r io.Reader) error {
	return func(r io.Reader) error {
		err := json.NewDecoder(r).Decode(v)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("while decoding JSON response: %w", err)
		}
		return nil
	}
}
