// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and checks instance against it, returning a
// descriptive error rather than the teacher's Fatal -- a bad config file is
// a startup-time user error, not a programming bug, and should not take
// down the process via panic/os.Exit from inside a library function.
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("comsrv-config.json", schema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: decode instance for validation: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
