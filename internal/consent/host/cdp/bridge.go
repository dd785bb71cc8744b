package cdp

// bridgeScript installs window.__cmpbridge in the page. CMP callbacks and
// inbound messages are queued there and drained by the Go side; window
// objects seen as message sources are kept in refs so replies can reach them.
const bridgeScript = `(function () {
  if (window.__cmpbridge) { return true; }
  var b = { queue: [], refs: [] };
  b.ref = function (w) {
    if (!w) { return -1; }
    for (var i = 0; i < b.refs.length; i++) { if (b.refs[i] === w) { return i; } }
    b.refs.push(w);
    return b.refs.length - 1;
  };
  b.drain = function () { var q = b.queue; b.queue = []; return q; };
  b.call = function (name, args) {
    var fn = window[name];
    if (typeof fn !== "function") { return { error: "not a function" }; }
    var real = args.map(function (a) {
      if (a && typeof a === "object" && typeof a.__cmpbridgeCallback === "number") {
        var id = a.__cmpbridgeCallback;
        return function (result, success) {
          b.queue.push({ kind: "callback", id: id, result: result === undefined ? null : result, success: !!success });
        };
      }
      return a;
    });
    try { fn.apply(window, real); } catch (e) { return { error: String(e) }; }
    return { error: "" };
  };
  b.hasFrame = function (w, name) {
    try { return !!(w && w.frames && w.frames[name]); } catch (e) { return false; }
  };
  window.addEventListener("message", function (e) {
    var data = e.data;
    try { JSON.stringify(data); } catch (err) { data = null; }
    b.queue.push({ kind: "message", data: data === undefined ? null : data, source: b.ref(e.source) });
  });
  window.__cmpbridge = b;
  return true;
})()`
