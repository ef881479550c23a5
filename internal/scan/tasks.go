// Package scan implements the bounded-concurrency scan orchestrator
// (spec.md §4.G): task flattening, batched execution under
// max_concurrent_sites, between-batch and emergency browser-restart
// decisions, a hang detector, and the post-processing safety net.
//
// Grounded on the teacher's internal/cachedaemon/distributor.go for the
// batch/fan-out shape (split work, run concurrently, collect into a results
// slice) and internal/render/chrome/pool.go's restart-threshold bookkeeping,
// generalized from per-instance to per-run thresholds.
package scan

import (
	"fmt"

	"github.com/edgecomet/netscan/pkg/types"
)

// FlattenTasks produces all_tasks = concat(expand(site) for site in sites),
// preserving insertion order (spec.md §4.G "Task flattening"). Each site's
// url field may hold more than one URL; every one becomes its own task
// sharing that site's configuration.
func FlattenTasks(global *types.GlobalConfig) []types.UrlTask {
	var tasks []types.UrlTask
	for siteIdx := range global.Sites {
		site := &global.Sites[siteIdx]
		for urlIdx, url := range site.URL {
			tasks = append(tasks, types.UrlTask{
				URL:       url,
				Site:      site,
				TaskID:    fmt.Sprintf("%d-%d", siteIdx, urlIdx),
				SiteIndex: siteIdx,
			})
		}
	}
	return tasks
}
