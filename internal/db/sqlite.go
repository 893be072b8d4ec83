package db

import (
	"database/sql/driver"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"modernc.org/sqlite"
)

// SQLiteLowerFunc is a Unicode-aware replacement for SQLite's LOWER, which
// only folds ASCII.
const SQLiteLowerFunc = "unicode_lower"

func init() {
	err := sqlite.RegisterDeterministicScalarFunction(SQLiteLowerFunc, 1, unicodeLower)
	if err != nil {
		panic(err)
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return cases.Lower(language.Und).String(v), nil
	case []byte:
		return cases.Lower(language.Und).String(string(v)), nil
	default:
		return v, nil
	}
}
