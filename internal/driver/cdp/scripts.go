package cdp

// Every call is wrapped in an envelope so a thrown exception comes back as a
// value instead of a protocol error. Elements live in a per-document registry
// keyed by the set returned from a search; a missing or detached entry means
// the element went stale.
const prelude = `
const reg = window.__storewalk || (window.__storewalk = {seq: 0, sets: {}, order: []});
const lookup = (key, idx) => {
  const set = reg.sets[key];
  const el = set && set[idx];
  if (!el || !el.isConnected) { const e = new Error('stale element'); e.stale = true; throw e; }
  return el;
};
const revive = (a) => (a && a.__storewalkElement) ? lookup(a.key, a.idx) : a;
`

// callTemplate receives the prelude, the JSON encoded argument list and the
// function body, in that order.
const callTemplate = `(() => {
  try {
%s
    const args = (%s).map(revive);
    const value = (function() { %s }).apply(null, args);
    return {ok: true, value: value === undefined ? null : value};
  } catch (e) {
    return {ok: false, stale: !!(e && e.stale), error: String(e && e.message || e)};
  }
})()`

// findBody: arguments are strategy, expression, scope key, scope index.
const findBody = `
const [strategy, expr, scopeKey, scopeIdx] = arguments;
const root = scopeKey ? lookup(scopeKey, scopeIdx) : document;
let found = [];
if (strategy === 'xpath') {
  const snap = document.evaluate(expr, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (let i = 0; i < snap.snapshotLength; i++) {
    const n = snap.snapshotItem(i);
    if (n.nodeType === Node.ELEMENT_NODE) found.push(n);
  }
} else {
  found = Array.from(root.querySelectorAll(expr));
}
if (found.length === 0) return {key: '', count: 0};
const key = 'k' + (++reg.seq);
reg.sets[key] = found;
reg.order.push(key);
while (reg.order.length > 512) delete reg.sets[reg.order.shift()];
return {key: key, count: found.length};
`

// Element operations take the element as arguments[0].
const (
	clickBody = `
const el = arguments[0];
el.scrollIntoView({block: 'center', inline: 'nearest'});
el.click();
return true;`

	focusBody = `
const el = arguments[0];
el.scrollIntoView({block: 'center', inline: 'nearest'});
el.focus();
return document.activeElement === el;`

	keyupBody = `
const el = arguments[0];
el.dispatchEvent(new KeyboardEvent('keyup', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`

	clearBody = `
const el = arguments[0];
if ('value' in el) el.value = '';
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`

	displayedBody = `
const el = arguments[0];
const style = window.getComputedStyle(el);
if (style.visibility === 'hidden' || style.display === 'none') return false;
return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);`

	selectedBody = `
const el = arguments[0];
return !!(el.checked || el.selected);`

	attributeBody = `
const [el, name] = arguments;
const prop = el[name];
if (prop !== undefined && prop !== null && typeof prop !== 'object' && typeof prop !== 'function') return String(prop);
const attr = el.getAttribute(name);
return attr === null ? '' : attr;`

	textBody = `
const el = arguments[0];
return (el.innerText !== undefined ? el.innerText : el.textContent || '').trim();`

	locationBody = `return location.href;`
)
