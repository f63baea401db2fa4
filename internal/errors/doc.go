// Package errors provides coded, actionable errors for the reflab command.
//
// Each error has a code (e.g., "R101") registered with a category, a short
// message and a longer explanation. Call sites add the specifics:
//
//	err := errors.New("R102").
//	    WithDetail(`limit "search": interval must be positive`).
//	    WithSuggestion("Set interval to a duration such as 250ms")
//
//	errors.PrintError(os.Stderr, err, errors.StyleText)
//	// Output:
//	// ERROR R102: Invalid configuration
//	//
//	//   limit "search": interval must be positive
//	//
//	//   Hint: Set interval to a duration such as 250ms
//
// # Code Ranges
//
//   - R1xx: configuration (reflab.yaml)
//   - R2xx: command line usage
//   - R3xx: inspector server
//
// PrintError also renders errors as one line (StyleCompact) or as a JSON
// object (StyleJSON) for scripts.
package errors
