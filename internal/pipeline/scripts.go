package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// evalOnDocScript wraps fetch/XMLHttpRequest to log outgoing URLs and guards
// against reload loops by capping same-URL location.reload/replace/assign
// calls at 2 (spec.md §4.F.3). Kept as a single fixed template -- no
// per-site parameterization needed beyond injection itself.
const evalOnDocScript = `(() => {
  if (window.__netscanEvalOnDocInstalled) return;
  window.__netscanEvalOnDocInstalled = true;

  const origFetch = window.fetch;
  if (origFetch) {
    window.fetch = function (input, init) {
      try {
        const url = typeof input === 'string' ? input : (input && input.url) || '';
        console.debug('[netscan-fetch]', url);
      } catch (e) {}
      return origFetch.apply(this, arguments);
    };
  }

  const origOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function (method, url) {
    try { console.debug('[netscan-xhr]', url); } catch (e) {}
    return origOpen.apply(this, arguments);
  };

  const reloadCounts = {};
  const guard = (fn) => function (url) {
    const key = String(url || window.location.href);
    reloadCounts[key] = (reloadCounts[key] || 0) + 1;
    if (reloadCounts[key] > 2) {
      console.debug('[netscan-reload-blocked]', key);
      return;
    }
    return fn.apply(this, arguments);
  };

  try {
    const origReload = window.location.reload.bind(window.location);
    window.location.reload = guard(origReload);
  } catch (e) {}
  try {
    const origReplace = window.location.replace.bind(window.location);
    window.location.replace = guard(origReplace);
  } catch (e) {}
  try {
    const origAssign = window.location.assign.bind(window.location);
    window.location.assign = guard(origAssign);
  } catch (e) {}
})();`

// evalOnDocScriptMinimal is the retry payload after a persistent protocol
// failure injecting the full script (spec.md §4.F.3: "retried once with a
// minimal payload"). It skips the fetch/XHR wrapping, keeping only the
// reload guard, which is the cheaper and more important half.
const evalOnDocScriptMinimal = `(() => {
  if (window.__netscanReloadGuardInstalled) return;
  window.__netscanReloadGuardInstalled = true;
  const reloadCounts = {};
  try {
    const origReload = window.location.reload.bind(window.location);
    window.location.reload = function (url) {
      const key = String(url || window.location.href);
      reloadCounts[key] = (reloadCounts[key] || 0) + 1;
      if (reloadCounts[key] > 2) return;
      return origReload.apply(this, arguments);
    };
  } catch (e) {}
})();`

// cssBlockedScript builds a <style> injection hiding each selector with
// display/visibility/opacity !important rules (spec.md §4.F.3).
func cssBlockedScript(selectors []string) string {
	if len(selectors) == 0 {
		return ""
	}
	var rules strings.Builder
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		fmt.Fprintf(&rules, "%s { display: none !important; visibility: hidden !important; opacity: 0 !important; }\n", sel)
	}
	if rules.Len() == 0 {
		return ""
	}
	return fmt.Sprintf(`(() => {
  const css = %q;
  const style = document.createElement('style');
  style.setAttribute('data-netscan-css-blocked', '1');
  style.textContent = css;
  (document.head || document.documentElement).appendChild(style);
})();`, rules.String())
}

// injectDocumentStartScript registers script to run at document-start via
// Page.addScriptToEvaluateOnNewDocument. Best-effort: errors are logged, not
// propagated (spec.md §4.F.3 "never fatal").
func injectDocumentStartScript(ctx context.Context, logger *zap.Logger, label, script string) {
	if script == "" {
		return
	}
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
	if err == nil {
		return
	}
	logger.Debug("document-start script injection failed, continuing without it",
		zap.String("script", label), zap.Error(err))
}

// injectEvalOnDoc installs the fetch/XHR logging + reload guard script,
// retrying once with the minimal payload on persistent protocol failure.
func injectEvalOnDoc(ctx context.Context, logger *zap.Logger) {
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(evalOnDocScript).Do(ctx)
		return err
	}))
	if err == nil {
		return
	}
	logger.Debug("eval_on_doc script injection failed, retrying with minimal payload", zap.Error(err))
	injectDocumentStartScript(ctx, logger, "eval_on_doc_minimal", evalOnDocScriptMinimal)
}

// injectCSSBlocked installs the CSS-hiding <style> both at document-start
// and again post-load (spec.md §4.F.3), since document-start injection alone
// can race elements inserted after load.
func injectCSSBlocked(ctx context.Context, logger *zap.Logger, selectors []string) {
	script := cssBlockedScript(selectors)
	if script == "" {
		return
	}
	injectDocumentStartScript(ctx, logger, "css_blocked", script)
}

// evaluateCSSBlockedPostLoad re-runs the CSS-hiding injection after the page
// has settled, via Runtime.evaluate rather than the document-start hook.
func evaluateCSSBlockedPostLoad(ctx context.Context, logger *zap.Logger, selectors []string) {
	script := cssBlockedScript(selectors)
	if script == "" {
		return
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		logger.Debug("post-load css_blocked re-injection failed", zap.Error(err))
	}
}
