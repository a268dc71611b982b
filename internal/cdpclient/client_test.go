package cdpclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BrowserPerfTraceKit/internal/cdptest"
)

// startMockEndpoint 启动模拟DevTools端点并注册清理
func startMockEndpoint(t *testing.T, config *cdptest.ServerConfig) *cdptest.Server {
	t.Helper()
	server := cdptest.New(config)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})
	return server
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	config := DefaultClientConfig(url)
	config.RetryMaxElapsedTime = 2 * time.Second
	config.CallTimeout = 2 * time.Second
	return New(config)
}

func TestClientConnectAndCall(t *testing.T) {
	server := startMockEndpoint(t, nil)
	client := newTestClient(t, server.URL())

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()
	assert.Equal(t, StateConnected, client.State())

	// 简单请求/响应配对
	require.NoError(t, client.Call(ctx, "Page.enable", nil, nil))

	var history struct {
		Entries []struct {
			URL string `json:"url"`
		} `json:"entries"`
	}
	require.NoError(t, client.Call(ctx, "Page.getNavigationHistory", nil, &history))
	require.Len(t, history.Entries, 1)
	assert.Equal(t, "https://example.com/", history.Entries[0].URL)
}

func TestClientCallProtocolError(t *testing.T) {
	server := startMockEndpoint(t, nil)
	client := newTestClient(t, server.URL())

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	err := client.Call(ctx, "Unknown.method", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wasn't found")
}

func TestClientCallBeforeConnect(t *testing.T) {
	client := newTestClient(t, "ws://127.0.0.1:1/devtools/page")
	err := client.Call(context.Background(), "Page.enable", nil, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientEventDispatch(t *testing.T) {
	server := startMockEndpoint(t, nil)
	client := newTestClient(t, server.URL())

	var mu sync.Mutex
	events := make(map[string]int)
	fired := make(chan struct{}, 4)
	client.SetEventHandler(func(method string, params json.RawMessage) {
		mu.Lock()
		events[method]++
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	// 导航后模拟端点会异步下发loadEventFired
	require.NoError(t, client.Call(ctx, "Page.navigate",
		map[string]string{"url": "https://example.com/shop"}, nil))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("等待Page.loadEventFired超时")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, events["Page.loadEventFired"])
}

func TestClientClose(t *testing.T) {
	server := startMockEndpoint(t, nil)
	client := newTestClient(t, server.URL())

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	err := client.Call(ctx, "Page.enable", nil, nil)
	require.Error(t, err)
}

// TestClientCloseWithCallsInFlight 关闭与在途调用并发时不得崩溃：
// 在途响应投递用的通道不能被Close关掉，调用方统一收到ErrClosed
func TestClientCloseWithCallsInFlight(t *testing.T) {
	for i := 0; i < 50; i++ {
		server := startMockEndpoint(t, nil)
		client := newTestClient(t, server.URL())
		require.NoError(t, client.Connect(context.Background()))

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					err := client.Call(context.Background(), "Page.getNavigationHistory", nil, nil)
					if err != nil {
						// 关闭路径上只允许这几种失败
						if !errors.Is(err, ErrClosed) && !errors.Is(err, ErrNotConnected) &&
							!errors.Is(err, context.DeadlineExceeded) {
							assert.Contains(t, err.Error(), "send")
						}
						return
					}
				}
			}()
		}

		client.Close()
		wg.Wait()
	}
}

func TestClientConnectUnreachable(t *testing.T) {
	config := DefaultClientConfig("ws://127.0.0.1:1/devtools/page")
	config.RetryInitialInterval = 10 * time.Millisecond
	config.RetryMaxInterval = 20 * time.Millisecond
	config.RetryMaxElapsedTime = 100 * time.Millisecond
	client := New(config)

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, client.State())
}
