package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/ptpport/internal/acl"
	"example.com/ptpport/internal/common"
	"example.com/ptpport/internal/discriminator"
	"example.com/ptpport/internal/foreign"
	"example.com/ptpport/internal/port"
	"example.com/ptpport/internal/servo"
	"example.com/ptpport/internal/status"
	"example.com/ptpport/internal/transport"
	"example.com/ptpport/internal/wire"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type aclConfig struct {
	Permit []string `yaml:"permit"`
	Deny   []string `yaml:"deny"`
	Order  string   `yaml:"order"`
}

type discriminatorConfig struct {
	NTPHost         string  `yaml:"ntpHost"`
	IntervalSeconds int     `yaml:"intervalSeconds"`
	ThresholdMS     float64 `yaml:"thresholdMS"`
}

type portConfig struct {
	Domain         uint8  `yaml:"domain"`
	Priority1      uint8  `yaml:"priority1"`
	Priority2      uint8  `yaml:"priority2"`
	SlaveOnly      bool   `yaml:"slaveOnly"`
	TwoStep        *bool  `yaml:"twoStep"`
	DelayMechanism string `yaml:"delayMechanism"`
	MonitorMode    bool   `yaml:"monitorMode"`
	Management     bool   `yaml:"management"`
	Monitoring     bool   `yaml:"monitoring"`
	CommCapsTLV    bool   `yaml:"commCapsTLV"`
	MinorVersion   uint8  `yaml:"minorVersion"`
	UTCOffset      int16  `yaml:"utcOffset"`
	UTCOffsetValid bool   `yaml:"utcOffsetValid"`
	PreferUTCValid bool   `yaml:"preferUTCValid"`

	LogAnnounceInterval    int8 `yaml:"logAnnounceInterval"`
	LogSyncInterval        int8 `yaml:"logSyncInterval"`
	LogMinDelayReqInterval int8 `yaml:"logMinDelayReqInterval"`
	AnnounceReceiptTimeout int  `yaml:"announceReceiptTimeout"`
	SyncReceiptTimeout     int  `yaml:"syncReceiptTimeout"`
	ForeignCapacity        int  `yaml:"foreignCapacity"`
}

type interfaceConfig struct {
	Name          string       `yaml:"name"`
	TTL           int          `yaml:"ttl"`
	TimingACL     aclConfig    `yaml:"timingACL"`
	ManagementACL aclConfig    `yaml:"managementACL"`
	Ports         []portConfig `yaml:"ports"`
}

type config struct {
	StatusPort    int                 `yaml:"statusPort"`
	ClockIdentity string              `yaml:"clockIdentity"`
	TickMS        int                 `yaml:"tickMS"`
	Interfaces    []interfaceConfig   `yaml:"interfaces"`
	Discriminator discriminatorConfig `yaml:"discriminator"`
	Logs          logConfig           `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	if cfg.StatusPort == 0 {
		cfg.StatusPort = 8091
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 62 // 1/16 s to the millisecond the ticker can hold
	}
	if len(cfg.Interfaces) == 0 {
		return cfg, errors.New("no interfaces configured")
	}
	for i := range cfg.Interfaces {
		ic := &cfg.Interfaces[i]
		if ic.Name == "" {
			return cfg, fmt.Errorf("interface %d: missing name", i)
		}
		if len(ic.Ports) == 0 {
			ic.Ports = []portConfig{{}}
		}
		seen := make(map[uint8]bool)
		for _, pc := range ic.Ports {
			if pc.MonitorMode {
				continue
			}
			if seen[pc.Domain] {
				return cfg, fmt.Errorf("interface %s: duplicate domain %d", ic.Name, pc.Domain)
			}
			seen[pc.Domain] = true
		}
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(".", "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "ptpd.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	common.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return nil
}

func parseACL(c aclConfig) (*acl.List, error) {
	if len(c.Permit) == 0 && len(c.Deny) == 0 {
		return nil, nil
	}
	order := acl.PermitDeny
	switch strings.ToLower(strings.TrimSpace(c.Order)) {
	case "", "permit-deny":
	case "deny-permit":
		order = acl.DenyPermit
	default:
		return nil, fmt.Errorf("unknown acl order %q", c.Order)
	}
	return acl.New(c.Permit, c.Deny, order)
}

// parseClockIdentity accepts the dotted form the daemon logs or a bare
// 16-digit hex string.
func parseClockIdentity(s string) (wire.ClockIdentity, error) {
	var id wire.ClockIdentity
	raw := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	if len(raw) != 16 {
		return id, fmt.Errorf("clock identity %q: want 16 hex digits", s)
	}
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return id, fmt.Errorf("clock identity %q: %w", s, err)
	}
	return id, nil
}

// identityFromInterface derives an EUI-64 identity from the interface
// MAC the way hardware clocks do.
func identityFromInterface(name string) (wire.ClockIdentity, error) {
	var id wire.ClockIdentity
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return id, err
	}
	mac := ifi.HardwareAddr
	if len(mac) != 6 {
		return id, fmt.Errorf("interface %s: no usable hardware address", name)
	}
	copy(id[0:3], mac[0:3])
	id[3] = 0xFF
	id[4] = 0xFE
	copy(id[5:8], mac[3:6])
	return id, nil
}

func buildDiscriminator(c discriminatorConfig) (*discriminator.NTP, time.Duration) {
	if c.NTPHost == "" {
		return nil, 0
	}
	threshold := time.Duration(c.ThresholdMS * float64(time.Millisecond))
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}
	d := discriminator.New(discriminator.Config{
		Host:     c.NTPHost,
		Interval: time.Duration(c.IntervalSeconds) * time.Second,
	})
	return d, threshold
}

// runInterface owns one interface: its sockets, its ports and the tick
// loop. Everything port-related happens on this goroutine.
func runInterface(ctx context.Context, ic interfaceConfig, identity wire.ClockIdentity,
	tick time.Duration, disc foreign.Discriminator, discThreshold time.Duration,
	store *status.Store) error {

	tr, err := transport.New(transport.Config{Interface: ic.Name, TTL: ic.TTL})
	if err != nil {
		return fmt.Errorf("transport %s: %w", ic.Name, err)
	}
	defer tr.Close()

	timingACL, err := parseACL(ic.TimingACL)
	if err != nil {
		return fmt.Errorf("timing acl %s: %w", ic.Name, err)
	}
	mgmtACL, err := parseACL(ic.ManagementACL)
	if err != nil {
		return fmt.Errorf("management acl %s: %w", ic.Name, err)
	}

	iface := &port.Interface{Name: ic.Name, TimingACL: timingACL, ManagementACL: mgmtACL}
	var ports []*port.Port
	for i, pc := range ic.Ports {
		name := fmt.Sprintf("%s.%d", ic.Name, pc.Domain)
		sv := &servo.Tracking{Name: name}
		mech := port.E2E
		if strings.EqualFold(pc.DelayMechanism, "p2p") {
			mech = port.P2P
		}
		twoStep := true
		if pc.TwoStep != nil {
			twoStep = *pc.TwoStep
		}
		p := port.New(port.Config{
			Name:                   name,
			ClockIdentity:          identity,
			PortNumber:             uint16(i + 1),
			DomainNumber:           pc.Domain,
			Priority1:              pc.Priority1,
			Priority2:              pc.Priority2,
			SlaveOnly:              pc.SlaveOnly,
			TwoStep:                twoStep,
			DelayMechanism:         mech,
			UTCOffset:              pc.UTCOffset,
			UTCOffsetValid:         pc.UTCOffsetValid,
			PreferUTCValid:         pc.PreferUTCValid,
			LogAnnounceInterval:    pc.LogAnnounceInterval,
			LogSyncInterval:        pc.LogSyncInterval,
			LogMinDelayReqInterval: pc.LogMinDelayReqInterval,
			AnnounceReceiptTimeout: pc.AnnounceReceiptTimeout,
			SyncReceiptTimeout:     pc.SyncReceiptTimeout,
			ForeignCapacity:        pc.ForeignCapacity,
			TickInterval:           tick.Seconds(),
			ManagementEnabled:      pc.Management,
			MonitoringEnabled:      pc.Monitoring,
			MonitorMode:            pc.MonitorMode,
			CommCapsTLVEnabled:     pc.CommCapsTLV,
			MinorVersion:           pc.MinorVersion,
			Discriminator:          disc,
			DiscriminatorThreshold: discThreshold,
		}, tr, sv, nil)
		p.SetManagementHandler(&port.DatasetAccessor{Port: p})
		iface.AddPort(p)
		ports = append(ports, p)
		p.Start()
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	common.Logf("ptpd: interface %s running with %d port(s)", ic.Name, len(ports))
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-tr.Packets():
			iface.ProcessPacket(pkt.Buf, pkt.Src, pkt.Recv, pkt.RecvValid)
		case <-ticker.C:
			for _, p := range ports {
				p.Tick()
				store.PublishPort(p.Snapshot())
			}
			store.PublishInterface(ic.Name, iface.Stats(), iface.Observations().Snapshot())
		}
	}
}

func main() {
	configPath := flag.String("config", "config/ptpd.yaml", "path to configuration file")
	addr := flag.String("addr", "", "status listen address (overrides config port)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	var identity wire.ClockIdentity
	if cfg.ClockIdentity != "" {
		identity, err = parseClockIdentity(cfg.ClockIdentity)
	} else {
		identity, err = identityFromInterface(cfg.Interfaces[0].Name)
	}
	if err != nil {
		log.Fatalf("clock identity: %v", err)
	}
	common.Logf("ptpd: clock identity %s", identity)

	disc, discThreshold := buildDiscriminator(cfg.Discriminator)
	if disc != nil {
		defer disc.Close()
	}

	store := status.NewStore()
	listenAddr := fmt.Sprintf(":%d", cfg.StatusPort)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      status.NewRouter(status.NewServer(store)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := time.Duration(cfg.TickMS) * time.Millisecond
	var wg sync.WaitGroup
	for _, ic := range cfg.Interfaces {
		wg.Add(1)
		go func(ic interfaceConfig) {
			defer wg.Done()
			var d foreign.Discriminator
			if disc != nil {
				d = disc
			}
			if err := runInterface(ctx, ic, identity, tick, d, discThreshold, store); err != nil {
				common.Logf("ptpd: %v", err)
			}
		}(ic)
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("status listen: %v", err)
		}
	}()
	common.Logf("ptpd: status on %s", listenAddr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		common.Logf("ptpd: shutdown: %v", err)
	}
	wg.Wait()
	common.Logf("ptpd stopped")
}
