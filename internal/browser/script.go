package browser

import (
	"fmt"

	json "github.com/goccy/go-json"
)

const (
	// targetAttributeName marks the element a keyboard backend should focus.
	targetAttributeName = "data-storefront-e2e-target"

	resolveElementsFunction = `function(steps){
  var nodes = [document];
  for (var i = 0; i < steps.length; i++) {
    var step = steps[i];
    var next = [];
    for (var j = 0; j < nodes.length; j++) {
      var found = nodes[j].querySelectorAll(step.selector);
      for (var k = 0; k < found.length; k++) {
        if (next.indexOf(found[k]) < 0) { next.push(found[k]); }
      }
    }
    if (step.index >= 0) {
      next = step.index < next.length ? [next[step.index]] : [];
    }
    nodes = next;
  }
  return nodes;
}`
)

// attributeResult is the decoded value of attributeScript.
type attributeResult struct {
	Found   bool   `json:"found"`
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

// textResult is the decoded value of textScript.
type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func resolveExpression(query Query) string {
	encodedSteps, encodeErr := json.Marshal(query.steps)
	if encodeErr != nil {
		encodedSteps = []byte("[]")
	}
	return fmt.Sprintf("(%s)(%s)", resolveElementsFunction, encodedSteps)
}

func countScript(query Query) string {
	return fmt.Sprintf("(function(){ return %s.length; })()", resolveExpression(query))
}

// visibleScript follows jQuery's :visible rule: an element is visible when it
// occupies layout space.
func visibleScript(query Query) string {
	return fmt.Sprintf(`(function(){
  var nodes = %s;
  if (!nodes.length) { return false; }
  var element = nodes[0];
  return !!(element.offsetWidth || element.offsetHeight || element.getClientRects().length);
})()`, resolveExpression(query))
}

func textScript(query Query) string {
	return fmt.Sprintf(`(function(){
  var nodes = %s;
  var text = "";
  for (var i = 0; i < nodes.length; i++) { text += nodes[i].textContent || ""; }
  return { found: nodes.length > 0, text: text };
})()`, resolveExpression(query))
}

func attributeScript(query Query, name string) string {
	return fmt.Sprintf(`(function(name){
  var nodes = %s;
  if (!nodes.length) { return { found: false, present: false, value: "" }; }
  var value = nodes[0].getAttribute(name);
  return { found: true, present: value !== null, value: value === null ? "" : value };
})(%q)`, resolveExpression(query), name)
}

func clickScript(query Query) string {
	return fmt.Sprintf(`(function(){
  var nodes = %s;
  if (!nodes.length) { return false; }
  nodes[0].click();
  return true;
})()`, resolveExpression(query))
}

// markScript tags the first matched element so a backend can address it with
// a plain CSS selector for real keyboard input.
func markScript(query Query, token string) string {
	return fmt.Sprintf(`(function(name, token){
  var previous = document.querySelectorAll("[" + name + "]");
  for (var i = 0; i < previous.length; i++) { previous[i].removeAttribute(name); }
  var nodes = %s;
  if (!nodes.length) { return false; }
  nodes[0].setAttribute(name, token);
  nodes[0].focus();
  return true;
})(%q, %q)`, resolveExpression(query), targetAttributeName, token)
}

func markedSelector(token string) string {
	return fmt.Sprintf("[%s=%q]", targetAttributeName, token)
}

const currentURLScript = "window.location.href"

// decodeEvaluation converts an evaluation result produced by any backend
// into destination by round-tripping it through JSON.
func decodeEvaluation(value interface{}, destination interface{}) error {
	encoded, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		return marshalErr
	}
	return json.Unmarshal(encoded, destination)
}
