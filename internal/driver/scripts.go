package driver

// Scripts shared by callers of ExecuteScript. The in-memory driver recognises
// these exact strings.
const (
	ScriptReadyState     = `return document.readyState;`
	ScriptScrollIntoView = `arguments[0].scrollIntoView({block: "center", inline: "nearest"}); return true;`
)
