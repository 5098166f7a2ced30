// Package daemon wires the lintbridge components together and runs them as
// one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/codescan-io/lintbridge/internal/appthread"
	"github.com/codescan-io/lintbridge/internal/binding"
	"github.com/codescan-io/lintbridge/internal/config"
	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/hotspot"
	"github.com/codescan-io/lintbridge/internal/ide"
	"github.com/codescan-io/lintbridge/internal/notification"
	"github.com/codescan-io/lintbridge/internal/observability"
	"github.com/codescan-io/lintbridge/internal/portbind"
	"github.com/codescan-io/lintbridge/internal/procutil"
	daemonruntime "github.com/codescan-io/lintbridge/internal/runtime"
	"github.com/codescan-io/lintbridge/internal/server"
	"github.com/codescan-io/lintbridge/internal/serverapi"
	"github.com/codescan-io/lintbridge/internal/telemetry"
)

const (
	dispatcherQueue = 64

	serviceOpTimeout = constants.Duration5Seconds
)

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Store *store.Store

	// SettingsPath overrides the instance settings.yaml.
	SettingsPath string
	// DisableControl keeps the control server off regardless of settings.
	DisableControl bool

	// Test hooks.
	Binder           portbind.Binder
	API              *serverapi.Client
	Browser          notification.BrowserOpener
	SocketPath       string
	HealthSocketPath string
	LockPath         string
}

// Daemon represents the main daemon process.
type Daemon struct {
	store     *store.Store
	bus       *eventbus.Bus
	host      *daemonruntime.ServiceHost
	lifecycle *daemonruntime.Lifecycle
	info      *RuntimeInfo
	paths     config.InstancePaths
	lockPath  string

	settingsPath   string
	disableControl bool

	ide      *ide.Info
	control  *controlService
	feed     *notification.Feed
	manager  *notification.Manager
	counters *telemetry.Counters
	bridge   *configBridge
	admin    *adminAPI

	ctx          context.Context
	cancel       context.CancelFunc
	errMu        sync.Mutex
	runErr       error
	configMu     sync.Mutex
	configCancel func()
	watcher      *config.SettingsWatcher
}

// New creates a daemon bound to the provided configuration store.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}

	paths := config.GetInstancePaths(opts.Store.InstanceName())
	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = paths.Settings
	}
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}

	socketPath := firstNonEmpty(opts.SocketPath, paths.Socket)
	healthPath := firstNonEmpty(opts.HealthSocketPath, paths.HealthSocket)
	lockPath := firstNonEmpty(opts.LockPath, paths.Lock)

	events := observability.NewEventCounter()
	bus := eventbus.New(eventbus.WithObserver(events))
	info := &RuntimeInfo{}
	info.SetSettings(settings)

	api := opts.API
	if api == nil {
		api = serverapi.New()
	}
	browser := opts.Browser
	if browser == nil {
		browser = systemBrowser{}
	}

	counters := telemetry.New(opts.Store)
	loadCtx, cancel := context.WithTimeout(context.Background(), constants.StoreQueryTimeout)
	if err := counters.Load(loadCtx); err != nil {
		log.Printf("[Daemon] telemetry counters not loaded: %v", err)
	}
	cancel()

	resolver := binding.NewResolver(opts.Store)
	ideInfo := ide.NewInfo(settings.IDE, opts.Store)
	dispatcher := appthread.New(dispatcherQueue)
	hotspots := hotspot.NewHandler(resolver, api, counters, bus)

	serverOpts := []server.Option{
		server.WithEventBus(bus),
		server.WithPortRange(portbind.Range{Start: settings.Control.PortStart, End: settings.Control.PortEnd}),
	}
	if opts.Binder != nil {
		serverOpts = append(serverOpts, server.WithBinder(opts.Binder))
	}
	controlServer := server.NewControlServer(
		server.NewRouter(ideInfo, hotspots, dispatcher),
		server.NewOriginValidator(opts.Store),
		serverOpts...,
	)

	feed := notification.NewFeed(api, opts.Store, settings.Notifications.PollInterval)
	alerts := notification.NewAlerts(bus, counters, opts.Store, browser)
	manager := notification.NewManager(opts.Store, notification.SubscriberDeps{
		Binding:      resolver,
		Capabilities: api,
		Feed:         feed,
		Times:        opts.Store,
		Listeners:    alerts,
		Bus:          bus,
	})
	manager.SetEnabled(context.Background(), settings.Notifications.Enabled)

	d := &Daemon{
		store:          opts.Store,
		bus:            bus,
		host:           daemonruntime.NewServiceHost(),
		lifecycle:      daemonruntime.NewLifecycle(),
		info:           info,
		paths:          paths,
		lockPath:       lockPath,
		settingsPath:   settingsPath,
		disableControl: opts.DisableControl,
		ide:            ideInfo,
		feed:           feed,
		manager:        manager,
		counters:       counters,
		bridge:         newConfigBridge(opts.Store, bus),
	}
	d.control = &controlService{server: controlServer, enabled: d.controlEnabled}
	d.admin = &adminAPI{
		store:    opts.Store,
		bus:      bus,
		info:     info,
		control:  controlServer,
		feed:     feed,
		manager:  manager,
		alerts:   alerts,
		counters: counters,
		metrics:  observability.NewExporter(observability.Sources{
			Bus:           bus,
			Events:        events,
			Usage:         counters.Snapshot,
			Poller:        feed,
			Control:       controlServer,
			Subscriptions: func() int { return len(manager.Projects()) },
		}).Handler(),
		shutdown: func() {
			if err := d.Shutdown(); err != nil {
				log.Printf("[Daemon] shutdown via API returned error: %v", err)
			}
		},
	}

	register := []struct {
		name string
		svc  daemonruntime.Service
	}{
		{"app_thread", funcService{
			start: func(ctx context.Context) error { dispatcher.Start(ctx); return nil },
			stop:  dispatcher.Shutdown,
		}},
		{"hotspots", funcService{
			start: func(ctx context.Context) error { hotspots.Start(ctx); return nil },
			stop:  hotspots.Shutdown,
		}},
		{"telemetry", newTelemetryService(counters)},
		{"notifications_feed", funcService{
			start: func(ctx context.Context) error { feed.Start(ctx); return nil },
			stop:  feed.Shutdown,
		}},
		{"notifications", manager},
		{"control_server", d.control},
		{"admin_api", newAdminService(socketPath, d.admin)},
		{"health", newHealthService(healthPath, bus, controlServer, manager.Enabled)},
	}
	for _, r := range register {
		if err := d.host.RegisterService(r.name, r.svc); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (d *Daemon) controlEnabled() bool {
	return !d.disableControl && d.info.Settings().Control.Enabled
}

// Start runs every service and blocks until Shutdown is called or a
// service fails.
func (d *Daemon) Start() error {
	if err := procutil.WritePIDFile(d.lockPath, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	defer procutil.RemovePIDFile(d.lockPath)

	d.info.SetStartTime(time.Now())
	d.configMu.Lock()
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.configMu.Unlock()

	seedCtx, seedCancel := context.WithTimeout(d.ctx, constants.StoreQueryTimeout)
	if err := d.bridge.seed(seedCtx); err != nil {
		log.Printf("[Daemon] cannot read projects: %v", err)
	}
	seedCancel()

	if err := d.host.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()
	if err := d.startConfigWatchers(); err != nil {
		log.Printf("[Daemon] config watcher error: %v", err)
	}

	<-d.lifecycle.Done()
	d.releaseWatchers()

	stopCtx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout*2)
	if err := d.host.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Daemon] service shutdown error: %v", err)
		d.setRunError(err)
	}
	cancel()

	return d.getRunError()
}

// Shutdown signals the daemon to stop.
func (d *Daemon) Shutdown() error {
	d.lifecycle.Shutdown()
	d.releaseWatchers()
	return nil
}

func (d *Daemon) releaseWatchers() {
	d.configMu.Lock()
	cancelConfig := d.configCancel
	d.configCancel = nil
	watcher := d.watcher
	d.watcher = nil
	cancelRun := d.cancel
	d.configMu.Unlock()
	if cancelConfig != nil {
		cancelConfig()
	}
	if watcher != nil {
		watcher.Close()
	}
	if cancelRun != nil {
		cancelRun()
	}
}

// Done is closed once shutdown was requested.
func (d *Daemon) Done() <-chan struct{} {
	return d.lifecycle.Done()
}

// Bus exposes the daemon event bus.
func (d *Daemon) Bus() *eventbus.Bus {
	return d.bus
}

// ControlServer returns the loopback control server.
func (d *Daemon) ControlServer() *server.ControlServer {
	return d.control.server
}

// Notifications returns the subscription manager.
func (d *Daemon) Notifications() *notification.Manager {
	return d.manager
}

// RuntimeInfo exposes runtime metadata.
func (d *Daemon) RuntimeInfo() *RuntimeInfo {
	return d.info
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.host.Errors() {
			if err == nil {
				continue
			}
			d.setRunError(err)
			log.Printf("[Daemon] %v", err)
			d.lifecycle.Shutdown()
		}
	}()
}

func (d *Daemon) startConfigWatchers() error {
	cancel, err := d.host.WatchConfig(d.store, constants.StoreWatchInterval, d.bridge.handle)
	if err != nil {
		return err
	}
	d.configMu.Lock()
	d.configCancel = cancel
	d.configMu.Unlock()

	watcher, err := config.NewSettingsWatcher(d.settingsPath, d.applySettings)
	if err != nil {
		return err
	}
	watcher.Start()
	d.configMu.Lock()
	d.watcher = watcher
	d.configMu.Unlock()
	return nil
}

// applySettings pushes a reloaded settings file into the running components.
func (d *Daemon) applySettings(settings config.Settings) {
	prev := d.info.Settings()
	d.info.SetSettings(settings)
	d.ide.SetIdentity(settings.IDE)
	d.feed.SetInterval(settings.Notifications.PollInterval)

	ctx, cancel := context.WithTimeout(d.ctx, serviceOpTimeout)
	defer cancel()
	d.manager.SetEnabled(ctx, settings.Notifications.Enabled)
	d.control.apply(ctx)
	if prev.Control.PortStart != settings.Control.PortStart || prev.Control.PortEnd != settings.Control.PortEnd {
		log.Printf("[Config] control port range change takes effect after restart")
	}

	log.Printf("[Config] settings reloaded from %s", d.settingsPath)
	eventbus.Publish(ctx, d.bus, eventbus.Config.GlobalApplied, eventbus.SourceSettingsWatcher, eventbus.GlobalSettingsAppliedEvent{Source: d.settingsPath})
}

func (d *Daemon) setRunError(err error) {
	if err == nil {
		return
	}
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// IsRunning checks whether a daemon already serves the given instance.
func IsRunning(instance string) bool {
	paths := config.GetInstancePaths(instance)
	if conn, err := net.Dial("unix", paths.Socket); err == nil {
		conn.Close()
		return true
	}
	_, ok := procutil.Running(paths.Lock)
	return ok
}
