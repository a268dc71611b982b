package perfsession

import "BrowserPerfTraceKit/internal/config"

// defaultCategories 缺省的跟踪类别允许列表，版本随配置包维护
func defaultCategories() []string {
	return config.DefaultTraceCategories()
}
