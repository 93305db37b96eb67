package command

// Kind says how a command may affect the keyspace.
type Kind int

const (
	// Untracked is returned for command names missing from the table.
	Untracked Kind = iota
	// ReadOnly commands never change state.
	ReadOnly
	// Mutating commands always mark their keys dirty.
	Mutating
	// Conditional commands mark their keys dirty only when the reply signals a change.
	Conditional
	// Transaction commands control MULTI/EXEC batches and touch no keys.
	Transaction
	// FlushAll commands change keys that cannot be attributed afterwards.
	FlushAll
)

var kindNames = map[Kind]string{
	Untracked:   "untracked",
	ReadOnly:    "read_only",
	Mutating:    "mutating",
	Conditional: "conditional",
	Transaction: "transaction",
	FlushAll:    "flush_all",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Rule names the argument positions that hold keys.
type Rule int

const (
	// None extracts no keys.
	None Rule = iota
	// First extracts the first argument.
	First
	// All extracts every argument.
	All
	// ExcludeFirst extracts every argument but the first.
	ExcludeFirst
	// ExcludeLast extracts every argument but the last, unless there is only one.
	ExcludeLast
	// ExcludeOptions extracts every argument except a trailing options map.
	ExcludeOptions
	// Alternate extracts even-indexed arguments (key/value pairs).
	Alternate
	// SortStore extracts the destination of a STORE clause, if any.
	SortStore
	// FirstTwo extracts the first two arguments.
	FirstTwo
	// NumKeys extracts the keys counted by the second argument (EVAL-style).
	NumKeys
	// LeadingNumKeys extracts the keys counted by the first argument
	// (LMPOP-style).
	LeadingNumKeys
	// Second extracts the second argument, after a subcommand.
	Second
	// GeoStore extracts the destination of a STORE or STOREDIST clause.
	GeoStore
	// Streams extracts the keys of a STREAMS clause (XREAD-style).
	Streams
)

var ruleNames = map[Rule]string{
	None:           "none",
	First:          "first",
	All:            "all",
	ExcludeFirst:   "exclude_first",
	ExcludeLast:    "exclude_last",
	ExcludeOptions: "exclude_options",
	Alternate:      "alternate",
	SortStore:      "sort_store",
	FirstTwo:       "first_two",
	NumKeys:        "num_keys",
	LeadingNumKeys: "leading_num_keys",
	Second:         "second",
	GeoStore:       "geo_store",
	Streams:        "streams",
}

func (r Rule) String() string {
	if s, ok := ruleNames[r]; ok {
		return s
	}
	return "unknown"
}

// Spec is one row of the classification table.
type Spec struct {
	Kind Kind
	Rule Rule
}
