package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/version"
	"github.com/companyzero/lanaudio/rpc"
	"github.com/davecgh/go-spew/spew"
	"github.com/jessevdk/go-flags"
	"github.com/mitchellh/go-homedir"
	"github.com/vaughan0/go-ini"
	strduration "github.com/xhit/go-str2duration/v2"
)

const (
	appName            = "lanaudio"
	defaultMaxLogFiles = 10
)

var (
	defaultRootDir = filepath.Join("~", "."+appName)
	defaultCfgFile = filepath.Join(defaultRootDir, appName+".conf")

	// errEarlyExit is returned by loadSettings when only informational
	// output was requested and the app should exit.
	errEarlyExit = errors.New("early exit")
)

// Command names.
const (
	cmdBroadcast = "broadcast"
	cmdListen    = "listen"
	cmdLsdev     = "lsdev"
)

type broadcastOpts struct {
	Bind       string `short:"b" long:"bind" description:"Address of the socket packets are sent from"`
	UseDefault bool   `short:"d" long:"use-default" description:"Capture from the default input device without prompting"`
	Device     string `long:"device" description:"Device to capture from: an index as listed by lsdev, 'system' or 'default'"`
}

type listenOpts struct {
	Bind string `short:"b" long:"bind" description:"Address of the socket packets are received on"`
}

type lsdevOpts struct{}

type cmdlineOpts struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to the config file"`
	DebugLevel string `long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	ShowEnv    bool   `long:"showenv" description:"Show the environment and loaded settings, then exit"`
	Version    bool   `short:"V" long:"version" description:"Show the version, then exit"`

	Broadcast broadcastOpts `command:"broadcast" description:"Capture audio and stream it to listeners on the LAN"`
	Listen    listenOpts    `command:"listen" description:"Find a broadcaster on the LAN and play its stream"`
	Lsdev     lsdevOpts     `command:"lsdev" description:"List the devices audio can be captured from"`
}

type settings struct {
	Command string

	// [stream] section
	BindAddr         string
	DiscoveryPort    uint16
	BroadcastAddr    netip.AddrPort
	ClientPort       uint16
	DiscoveryTimeout time.Duration
	AnnounceInterval time.Duration

	// [capture] section
	Capture    audio.CaptureConfig
	Device     string
	UseDefault bool

	// [log] section
	LogFile          string
	MaxLogFiles      int
	DebugLevel       string
	StatsInterval    time.Duration
	ListenPrometheus string
}

// discoveryBindAddr returns the address the broadcaster binds to answer
// discovery requests. It is always the wildcard address: a socket bound to a
// unicast address does not receive broadcast datagrams.
func (s *settings) discoveryBindAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(int(s.DiscoveryPort)))
}

// expandPath expands a leading ~ and cleans the path.
func expandPath(path string) (string, error) {
	res, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(res), nil
}

// parseDeviceSelector parses the device selector of the broadcast command.
func parseDeviceSelector(s string) (audio.DeviceSelector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return audio.SystemAudioSelector, nil
	case "default", "":
		return audio.DefaultDeviceSelector, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid device %q", s)
	}
	return audio.DeviceSelector(i), nil
}

// loadSettings parses the command line args, then loads the config file.
// Settings from the command line take precedence over the config file.
func loadSettings(args []string, stderr io.Writer) (*settings, error) {
	var opts cmdlineOpts
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = appName
	_, err := parser.ParseArgs(args)
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		return nil, errEarlyExit
	}
	if opts.Version {
		fmt.Fprintf(stderr, "%s %s (%s)\n", appName, version.String(), runtime.Version())
		return nil, errEarlyExit
	}
	if err != nil {
		return nil, err
	}

	println := func(format string, args ...interface{}) {
		fmt.Fprintf(stderr, format+"\n", args...)
	}

	cfgFile := opts.ConfigFile
	if cfgFile == "" {
		cfgFile = defaultCfgFile
	}
	if cfgFile, err = expandPath(cfgFile); err != nil {
		return nil, err
	}
	rootDir, err := expandPath(defaultRootDir)
	if err != nil {
		return nil, err
	}

	if opts.ShowEnv {
		println("%s %s (%s)", appName, version.String(), runtime.Version())
		println("Root dir: %s", rootDir)
		println("Config file path: %s", cfgFile)
	}

	// Default settings.
	s := &settings{
		BindAddr:         net.JoinHostPort("0.0.0.0", strconv.Itoa(rpc.DefaultStreamPort)),
		DiscoveryPort:    rpc.DiscoveryPort,
		BroadcastAddr:    netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), rpc.DiscoveryPort),
		DiscoveryTimeout: rpc.DiscoveryTimeout,
		AnnounceInterval: rpc.DiscoveryInterval,
		Capture:          audio.DefaultCaptureConfig(),
		LogFile:          filepath.Join(rootDir, "logs", appName+".log"),
		MaxLogFiles:      defaultMaxLogFiles,
		DebugLevel:       "info",
		StatsInterval:    time.Minute,
	}

	// The config file is optional.
	cfg, err := ini.LoadFile(cfgFile)
	switch {
	case errors.Is(err, os.ErrNotExist) && opts.ConfigFile == "":
		cfg = ini.File{}
		if opts.ShowEnv {
			println("Config file not found. Using defaults")
		}
	case err != nil:
		return nil, err
	case opts.ShowEnv:
		println("Config file successfully loaded!")
	}

	if err := s.fillFromConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	}

	// Command line overrides.
	if opts.DebugLevel != "" {
		s.DebugLevel = opts.DebugLevel
	}
	if parser.Active != nil {
		s.Command = parser.Active.Name
	}
	switch s.Command {
	case cmdBroadcast:
		if opts.Broadcast.Bind != "" {
			s.BindAddr = opts.Broadcast.Bind
		}
		if opts.Broadcast.Device != "" {
			s.Device = opts.Broadcast.Device
		}
		s.UseDefault = s.UseDefault || opts.Broadcast.UseDefault
	case cmdListen:
		if opts.Listen.Bind != "" {
			s.BindAddr = opts.Listen.Bind
		}
	}

	if s.Device != "" {
		if _, err := parseDeviceSelector(s.Device); err != nil {
			return nil, err
		}
	}
	if _, _, err := net.SplitHostPort(s.BindAddr); err != nil {
		return nil, fmt.Errorf("invalid bind address %q: %v", s.BindAddr, err)
	}

	if opts.ShowEnv {
		println("Settings:")
		println("%s", spew.Sdump(s))
		return nil, errEarlyExit
	}

	return s, nil
}

// fillFromConfig fills the settings from the config file.
func (s *settings) fillFromConfig(cfg ini.File) error {
	var err error
	setErr := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	get := func(v *string, section, field string) bool {
		res, ok := cfg.Get(section, field)
		if ok {
			*v = strings.TrimSpace(res)
		}
		return ok
	}
	getInt := func(i *int, section, field string) {
		var v string
		if get(&v, section, field) {
			res, e := strconv.Atoi(v)
			if e != nil {
				setErr(fmt.Errorf("invalid [%s] %s: %v", section, field, e))
				return
			}
			*i = res
		}
	}
	getPort := func(p *uint16, section, field string) {
		var v string
		if get(&v, section, field) {
			res, e := strconv.ParseUint(v, 10, 16)
			if e != nil {
				setErr(fmt.Errorf("invalid [%s] %s: %v", section, field, e))
				return
			}
			*p = uint16(res)
		}
	}
	getBool := func(b *bool, section, field string) {
		var v string
		if get(&v, section, field) {
			res, e := strconv.ParseBool(v)
			if e != nil {
				setErr(fmt.Errorf("invalid [%s] %s: %v", section, field, e))
				return
			}
			*b = res
		}
	}
	getDuration := func(d *time.Duration, section, field string) {
		var v string
		if !get(&v, section, field) {
			return
		}
		if v == "" {
			// Disabled.
			*d = 0
			return
		}
		res, e := strduration.ParseDuration(v)
		if e != nil {
			setErr(fmt.Errorf("invalid [%s] %s: %v", section, field, e))
			return
		}
		*d = res
	}

	// [stream]
	get(&s.BindAddr, "stream", "bind")
	getPort(&s.DiscoveryPort, "stream", "discoveryport")
	getPort(&s.ClientPort, "stream", "clientport")
	getDuration(&s.DiscoveryTimeout, "stream", "discoverytimeout")
	getDuration(&s.AnnounceInterval, "stream", "announceinterval")
	var bcastAddr string
	if get(&bcastAddr, "stream", "broadcastaddr") {
		addr, e := netip.ParseAddr(bcastAddr)
		if e != nil {
			setErr(fmt.Errorf("invalid [stream] broadcastaddr: %v", e))
		} else {
			s.BroadcastAddr = netip.AddrPortFrom(addr, s.DiscoveryPort)
		}
	} else {
		s.BroadcastAddr = netip.AddrPortFrom(s.BroadcastAddr.Addr(), s.DiscoveryPort)
	}

	// [capture]
	getInt(&s.Capture.SampleRate, "capture", "samplerate")
	getInt(&s.Capture.Channels, "capture", "channels")
	getInt(&s.Capture.FrameChunkSize, "capture", "framechunksize")
	get(&s.Device, "capture", "device")
	getBool(&s.UseDefault, "capture", "usedefault")
	setErr(s.Capture.Validate())

	// [log]
	if get(&s.LogFile, "log", "logfile") && s.LogFile != "" {
		path, e := expandPath(s.LogFile)
		setErr(e)
		s.LogFile = path
	}
	getInt(&s.MaxLogFiles, "log", "maxlogfiles")
	get(&s.DebugLevel, "log", "debuglevel")
	getDuration(&s.StatsInterval, "log", "statsinterval")
	get(&s.ListenPrometheus, "log", "listenprometheus")

	return err
}
