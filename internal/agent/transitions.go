package agent

// StateName names a node of the request state machine.
type StateName string

const (
	StateClassify      StateName = "classify"
	StateResolveBoards StateName = "resolve_boards"
	StateFetch         StateName = "fetch"
	StatePush          StateName = "push"
	StateList          StateName = "list"
	StateRender        StateName = "render"
)

// Intent is what the user asked for.
type Intent string

const (
	IntentFetch Intent = "fetch"
	IntentPush  Intent = "push"
	IntentList  Intent = "list"
	IntentHelp  Intent = "help"
)

// anyIntent matches every intent in the transition table.
const anyIntent Intent = "*"

// ParseIntent maps s to a known intent; anything else is help.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentFetch, IntentPush, IntentList, IntentHelp:
		return Intent(s)
	default:
		return IntentHelp
	}
}

type edge struct {
	from   StateName
	intent Intent
}

// transitions is the whole control flow of a request. classify is the only
// branch point; render has no outgoing edge.
var transitions = map[edge]StateName{
	{StateClassify, IntentFetch}:    StateResolveBoards,
	{StateClassify, IntentPush}:     StatePush,
	{StateClassify, IntentList}:     StateList,
	{StateClassify, IntentHelp}:     StateRender,
	{StateResolveBoards, anyIntent}: StateFetch,
	{StateFetch, anyIntent}:         StateRender,
	{StatePush, anyIntent}:          StateRender,
	{StateList, anyIntent}:          StateRender,
}

// Next returns the state that follows from on intent. An exact edge wins
// over a wildcard one. ok is false for render and for unknown pairs.
func Next(from StateName, intent Intent) (StateName, bool) {
	if to, ok := transitions[edge{from, intent}]; ok {
		return to, true
	}
	to, ok := transitions[edge{from, anyIntent}]
	return to, ok
}

// IsTerminal reports whether s ends a request.
func IsTerminal(s StateName) bool { return s == StateRender }
