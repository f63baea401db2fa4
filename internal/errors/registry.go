package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Configuration (R100-R199)

	"R101": {
		Category: CategoryConfig,
		Message:  "Cannot read configuration",
		Detail:   "reflab.yaml exists but could not be read or parsed.",
	},
	"R102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"R103": {
		Category: CategoryConfig,
		Message:  "Unknown timing base",
		Detail:   "Rate limiters accept timeout, frame or tick.",
	},

	// Command line (R200-R299)

	"R201": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
	},
	"R202": {
		Category: CategoryCLI,
		Message:  "Scenario not found",
	},
	"R203": {
		Category: CategoryCLI,
		Message:  "Command failed",
	},

	// Inspector server (R300-R399)

	"R301": {
		Category: CategoryServer,
		Message:  "Inspector server failed",
	},
	"R302": {
		Category: CategoryServer,
		Message:  "Watch stream failed",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
