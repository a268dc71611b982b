package cdpclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserPerfTraceKit/internal/cdptest"
)

// newTestDriver 建立已连接的驱动与模拟端点
func newTestDriver(t *testing.T, serverConfig *cdptest.ServerConfig) (*Driver, *cdptest.Server) {
	t.Helper()
	server := startMockEndpoint(t, serverConfig)
	client := newTestClient(t, server.URL())

	driverConfig := DefaultDriverConfig()
	driverConfig.QuietWindow = 50 * time.Millisecond
	driverConfig.QuiescenceTimeout = 500 * time.Millisecond
	driverConfig.LoadTimeout = 2 * time.Second
	driver := NewDriver(client, driverConfig)

	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	require.NoError(t, driver.Prepare(context.Background()))
	return driver, server
}

func TestDriverCurrentURL(t *testing.T) {
	config := cdptest.DefaultServerConfig()
	config.PageURL = "https://example.com/cart"
	driver, _ := newTestDriver(t, config)

	url, err := driver.CurrentURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/cart", url)
}

func TestDriverNavigateAndWaitForLoad(t *testing.T) {
	driver, _ := newTestDriver(t, nil)
	ctx := context.Background()

	require.NoError(t, driver.Navigate(ctx, "https://example.com/shop"))
	require.NoError(t, driver.WaitForLoad(ctx))

	url, err := driver.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/shop", url)
}

// TestDriverLoadEventBeforeWait loadEventFired先于WaitForLoad到达时
// 不能丢事件：等待者在导航发出前就已布好，晚调用立即返回
func TestDriverLoadEventBeforeWait(t *testing.T) {
	config := cdptest.DefaultServerConfig()
	config.LoadDelay = 0
	driver, _ := newTestDriver(t, config)
	ctx := context.Background()

	require.NoError(t, driver.Navigate(ctx, "https://example.com/shop"))

	// 留足时间让load事件在WaitForLoad之前送达
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, driver.WaitForLoad(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDriverWaitForQuiescence(t *testing.T) {
	driver, _ := newTestDriver(t, nil)

	// 没有网络活动时应在静默窗口后返回
	start := time.Now()
	require.NoError(t, driver.WaitForQuiescence(context.Background()))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestDriverWaitForQuiescenceCancel(t *testing.T) {
	driver, _ := newTestDriver(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := driver.WaitForQuiescence(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriverTracingRoundTrip(t *testing.T) {
	config := cdptest.DefaultServerConfig()
	config.TraceEvents = []map[string]interface{}{
		{"name": "RunTask", "cat": "toplevel", "ph": "X", "ts": 1000, "dur": 500, "pid": 1, "tid": 1},
		{"name": "ParseHTML", "cat": "devtools.timeline", "ph": "X", "ts": 1100, "dur": 200, "pid": 1, "tid": 1},
	}
	driver, _ := newTestDriver(t, config)
	ctx := context.Background()

	require.NoError(t, driver.StartTracing(ctx, []string{"toplevel", "devtools.timeline"}))

	payload, err := driver.StopTracing(ctx)
	require.NoError(t, err)

	var events []map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "RunTask", events[0]["name"])
	assert.Equal(t, "ParseHTML", events[1]["name"])
}

func TestDriverStopWithoutStart(t *testing.T) {
	driver, _ := newTestDriver(t, nil)

	_, err := driver.StopTracing(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestDriverStartTracingRejected(t *testing.T) {
	config := cdptest.DefaultServerConfig()
	config.FailTracing = true
	driver, _ := newTestDriver(t, config)

	err := driver.StartTracing(context.Background(), []string{"toplevel"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}
