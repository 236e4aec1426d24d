package pwdriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
)

func TestLaunchOptions(t *testing.T) {
	t.Run("chrome", func(t *testing.T) {
		opts := launchOptions(config.BrowserConfig{Kind: config.BrowserChrome, Headless: true, Args: []string{"--lang=de-DE"}})
		require.NotNil(t, opts.Headless)
		assert.True(t, *opts.Headless)
		assert.Equal(t, []string{"--no-sandbox", "--disable-dev-shm-usage", "--lang=de-DE"}, opts.Args)
		assert.Nil(t, opts.Channel)
		assert.Nil(t, opts.ExecutablePath)
	})

	t.Run("edge uses the msedge channel", func(t *testing.T) {
		opts := launchOptions(config.BrowserConfig{Kind: config.BrowserEdge})
		require.NotNil(t, opts.Channel)
		assert.Equal(t, "msedge", *opts.Channel)
	})

	t.Run("explicit executable wins over the channel", func(t *testing.T) {
		opts := launchOptions(config.BrowserConfig{Kind: config.BrowserEdge, ExecPath: "/opt/edge/msedge"})
		assert.Nil(t, opts.Channel)
		require.NotNil(t, opts.ExecutablePath)
		assert.Equal(t, "/opt/edge/msedge", *opts.ExecutablePath)
	})

	t.Run("firefox gets no chromium switches", func(t *testing.T) {
		opts := launchOptions(config.BrowserConfig{Kind: config.BrowserFirefox, Headless: false})
		assert.Empty(t, opts.Args)
		assert.False(t, *opts.Headless)
	})
}

func TestInstallBrowsers(t *testing.T) {
	assert.Equal(t, []string{"chromium"}, installBrowsers(config.BrowserConfig{Kind: config.BrowserChrome}))
	assert.Equal(t, []string{"firefox"}, installBrowsers(config.BrowserConfig{Kind: config.BrowserFirefox}))
	assert.Equal(t, []string{"msedge"}, installBrowsers(config.BrowserConfig{Kind: config.BrowserEdge}))
}

func TestSelector(t *testing.T) {
	sel, err := selector(driver.ByCSS(".account"))
	require.NoError(t, err)
	assert.Equal(t, "css=.account", sel)

	sel, err = selector(driver.ByXPath("//a[contains(text(), 'Create one here')]"))
	require.NoError(t, err)
	assert.Equal(t, "xpath=//a[contains(text(), 'Create one here')]", sel)

	sel, err = selector(driver.ByName("email"))
	require.NoError(t, err)
	assert.Equal(t, `css=[name="email"]`, sel)

	_, err = selector(driver.ByCSS(""))
	assert.Error(t, err)
}

func TestTimeoutMs(t *testing.T) {
	assert.Nil(t, timeoutMs(context.Background(), 0))
	assert.Equal(t, float64(5000), *timeoutMs(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ms := *timeoutMs(ctx, 5*time.Second)
	assert.LessOrEqual(t, ms, float64(200))
	assert.Greater(t, ms, float64(0))

	expired, cancelExpired := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancelExpired()
	<-expired.Done()
	assert.Equal(t, float64(1), *timeoutMs(expired, 0))
}

func TestFailClassification(t *testing.T) {
	d := &Driver{logger: zaptest.NewLogger(t)}
	ctx := context.Background()

	err := d.fail(ctx, "click", errors.New("Element is not attached to the DOM"))
	assert.ErrorIs(t, err, driver.ErrStaleElement)

	err = d.fail(ctx, "find", errors.New("Target page, context or browser has been closed"))
	assert.True(t, driver.IsSessionFailure(err))

	err = d.fail(ctx, "find", errors.New("Unexpected token"))
	assert.False(t, driver.IsSessionFailure(err))
}

func TestClosedDriver(t *testing.T) {
	d := &Driver{logger: zaptest.NewLogger(t), closed: true}
	ctx := context.Background()

	_, err := d.FindAll(ctx, driver.ByCSS("a"))
	assert.ErrorIs(t, err, driver.ErrSessionClosed)
	_, err = d.ExecuteScript(ctx, driver.ScriptReadyState)
	assert.ErrorIs(t, err, driver.ErrSessionClosed)
	assert.ErrorIs(t, d.SwitchToDefault(ctx), driver.ErrSessionClosed)
	assert.NoError(t, d.Close(ctx))
}

func TestDoHonoursContext(t *testing.T) {
	d := &Driver{logger: zaptest.NewLogger(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	err := d.do(ctx, func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
