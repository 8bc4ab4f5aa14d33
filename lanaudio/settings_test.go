package main

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/companyzero/lanaudio/internal/assert"
	"github.com/companyzero/lanaudio/internal/audio"
	"github.com/companyzero/lanaudio/internal/netutils"
	"github.com/companyzero/lanaudio/internal/testutils"
	"github.com/companyzero/lanaudio/rpc"
	"github.com/companyzero/lanaudio/stream/sender"
	"github.com/mitchellh/go-homedir"
)

const testConfig = `
[stream]
bind = 0.0.0.0:6001
discoveryport = 6000
broadcastaddr = 192.168.1.255
clientport = 6002
discoverytimeout = 2s
announceinterval = 500ms

[capture]
samplerate = 44100
channels = 1
framechunksize = 256
usedefault = true

[log]
logfile = ~/lanaudio-test/app.log
maxlogfiles = 3
debuglevel = debug
statsinterval = 1m30s
listenprometheus = 127.0.0.1:9100
`

// withTestHome points the home dir to a temp dir.
func withTestHome(t *testing.T) string {
	t.Helper()
	home := testutils.TempTestDir(t, "lanaudio-home")
	homedir.DisableCache = true
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

// TestLoadSettingsConfigFile tests loading every config file setting.
func TestLoadSettingsConfigFile(t *testing.T) {
	home := withTestHome(t)
	cfgFile := testutils.WriteTestFile(t, home, "lanaudio.conf", testConfig)

	s, err := loadSettings([]string{"-C", cfgFile, "broadcast"}, io.Discard)
	assert.NilErr(t, err)

	assert.DeepEqual(t, s.Command, cmdBroadcast)
	assert.DeepEqual(t, s.BindAddr, "0.0.0.0:6001")
	assert.DeepEqual(t, s.DiscoveryPort, uint16(6000))
	assert.DeepEqual(t, s.BroadcastAddr, netip.MustParseAddrPort("192.168.1.255:6000"))
	assert.DeepEqual(t, s.ClientPort, uint16(6002))
	assert.DeepEqual(t, s.DiscoveryTimeout, 2*time.Second)
	assert.DeepEqual(t, s.AnnounceInterval, 500*time.Millisecond)
	assert.DeepEqual(t, s.Capture, audio.CaptureConfig{
		SampleRate:     44100,
		Channels:       1,
		FrameChunkSize: 256,
	})
	assert.BoolIs(t, s.UseDefault, true)
	assert.DeepEqual(t, s.LogFile, filepath.Join(home, "lanaudio-test", "app.log"))
	assert.DeepEqual(t, s.MaxLogFiles, 3)
	assert.DeepEqual(t, s.DebugLevel, "debug")
	assert.DeepEqual(t, s.StatsInterval, 90*time.Second)
	assert.DeepEqual(t, s.ListenPrometheus, "127.0.0.1:9100")
	assert.DeepEqual(t, s.discoveryBindAddr(), "0.0.0.0:6000")
}

// TestLoadSettingsDefaults tests the defaults when the default config file
// does not exist.
func TestLoadSettingsDefaults(t *testing.T) {
	home := withTestHome(t)

	s, err := loadSettings([]string{"listen"}, io.Discard)
	assert.NilErr(t, err)
	assert.DeepEqual(t, s.Command, cmdListen)
	assert.DeepEqual(t, s.BindAddr, "0.0.0.0:50001")
	assert.DeepEqual(t, s.BroadcastAddr, netip.MustParseAddrPort("255.255.255.255:50000"))
	assert.DeepEqual(t, s.ClientPort, uint16(0))
	assert.DeepEqual(t, s.DiscoveryTimeout, 5*time.Second)
	assert.DeepEqual(t, s.Capture, audio.DefaultCaptureConfig())
	assert.DeepEqual(t, s.LogFile, filepath.Join(home, ".lanaudio", "logs", "lanaudio.log"))
	assert.DeepEqual(t, s.DebugLevel, "info")
	assert.DeepEqual(t, s.discoveryBindAddr(), "0.0.0.0:50000")
}

// TestLoadSettingsCommandLine tests that command line flags override the
// config file.
func TestLoadSettingsCommandLine(t *testing.T) {
	home := withTestHome(t)
	cfgFile := testutils.WriteTestFile(t, home, "lanaudio.conf", testConfig)

	tests := []struct {
		name       string
		args       []string
		wantBind   string
		wantDevice string
		wantLevel  string
	}{{
		name:     "broadcast bind",
		args:     []string{"-C", cfgFile, "broadcast", "-b", "10.0.0.1:7000"},
		wantBind: "10.0.0.1:7000", wantLevel: "debug",
	}, {
		name:     "listen bind",
		args:     []string{"-C", cfgFile, "--debuglevel", "trace", "listen", "--bind", "10.0.0.2:7001"},
		wantBind: "10.0.0.2:7001", wantLevel: "trace",
	}, {
		name:       "device",
		args:       []string{"-C", cfgFile, "broadcast", "--device", "system"},
		wantBind:   "0.0.0.0:6001",
		wantDevice: "system",
		wantLevel:  "debug",
	}, {
		name:     "lsdev",
		args:     []string{"-C", cfgFile, "lsdev"},
		wantBind: "0.0.0.0:6001", wantLevel: "debug",
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := loadSettings(tc.args, io.Discard)
			assert.NilErr(t, err)
			assert.DeepEqual(t, s.BindAddr, tc.wantBind)
			assert.DeepEqual(t, s.Device, tc.wantDevice)
			assert.DeepEqual(t, s.DebugLevel, tc.wantLevel)
		})
	}
}

// TestLoadSettingsErrors tests invalid settings.
func TestLoadSettingsErrors(t *testing.T) {
	home := withTestHome(t)

	tests := []struct {
		name   string
		config string
		args   []string
	}{{
		name:   "invalid port",
		config: "[stream]\ndiscoveryport = 70000\n",
	}, {
		name:   "invalid broadcast addr",
		config: "[stream]\nbroadcastaddr = not-an-ip\n",
	}, {
		name:   "invalid duration",
		config: "[log]\nstatsinterval = soon\n",
	}, {
		name:   "invalid chunk size",
		config: "[capture]\nframechunksize = 0\n",
	}, {
		name:   "invalid usedefault",
		config: "[capture]\nusedefault = maybe\n",
	}, {
		name: "invalid device",
		args: []string{"--device", "mic"},
	}, {
		name: "invalid bind",
		args: []string{"--bind", "10.0.0.1"},
	}}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			name := filepath.Join("cfgs", string(rune('a'+i))+".conf")
			cfgFile := testutils.WriteTestFile(t, home, name, tc.config)
			args := append([]string{"-C", cfgFile, "broadcast"}, tc.args...)
			_, err := loadSettings(args, io.Discard)
			assert.NonNilErr(t, err)
			if errors.Is(err, errEarlyExit) {
				t.Fatalf("unexpected early exit")
			}
		})
	}

	// A missing explicit config file is an error.
	_, err := loadSettings([]string{"-C", filepath.Join(home, "missing.conf"), "listen"}, io.Discard)
	assert.NonNilErr(t, err)

	// A command is required.
	_, err = loadSettings(nil, io.Discard)
	assert.NonNilErr(t, err)
}

// TestLoadSettingsEarlyExit tests the informational flags.
func TestLoadSettingsEarlyExit(t *testing.T) {
	withTestHome(t)
	for _, args := range [][]string{
		{"--version"},
		{"--showenv", "listen"},
	} {
		_, err := loadSettings(args, io.Discard)
		assert.ErrorIs(t, err, errEarlyExit)
	}
}

func TestParseDeviceSelector(t *testing.T) {
	tests := []struct {
		in      string
		want    audio.DeviceSelector
		wantErr bool
	}{
		{"system", audio.SystemAudioSelector, false},
		{"System", audio.SystemAudioSelector, false},
		{"default", audio.DefaultDeviceSelector, false},
		{"0", 0, false},
		{"3", 3, false},
		{"-1", 0, true},
		{"mic", 0, true},
	}
	for _, tc := range tests {
		got, err := parseDeviceSelector(tc.in)
		if tc.wantErr {
			assert.NonNilErr(t, err)
			continue
		}
		assert.NilErr(t, err)
		assert.DeepEqual(t, got, tc.want)
	}
}

// TestDiscoveryBindAddrIsWildcard tests that the discovery socket is bound to
// the wildcard address regardless of the stream bind address, so that
// broadcast requests are received.
func TestDiscoveryBindAddrIsWildcard(t *testing.T) {
	home := withTestHome(t)
	cfgFile := testutils.WriteTestFile(t, home, "lanaudio.conf", testConfig)

	for _, bind := range []string{"192.0.2.2:7000", "127.0.0.1:7000", "[::1]:7000"} {
		s, err := loadSettings([]string{"-C", cfgFile, "broadcast", "-b", bind}, io.Discard)
		assert.NilErr(t, err)
		assert.DeepEqual(t, s.discoveryBindAddr(), "0.0.0.0:6000")
	}

	// A broadcaster wired from the settings answers requests sent to any
	// local address.
	s := &settings{BindAddr: "127.0.0.1:0", DiscoveryPort: 0}
	snd, err := sender.New(
		sender.WithLogger(testutils.TestLoggerSys(t, "SEND")),
		sender.WithBindAddr(s.BindAddr),
		sender.WithDiscoveryAddr(s.discoveryBindAddr()),
		sender.WithAnnounceInterval(0),
		sender.WithReportStatsInterval(0),
	)
	assert.NilErr(t, err)
	defer snd.Close()
	assert.BoolIs(t, snd.DiscoveryAddr().Addr().IsUnspecified(), true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- snd.Run(ctx, make(chan audio.SampleChunk)) }()

	cliConn, err := netutils.ListenUDP(ctx, "127.0.0.1:0", false)
	assert.NilErr(t, err)
	defer cliConn.Close()
	target := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), snd.DiscoveryAddr().Port())
	_, err = cliConn.WriteToUDPAddrPort([]byte(rpc.DiscoverRequest), target)
	assert.NilErr(t, err)

	cliConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, err := cliConn.Read(buf)
	assert.NilErr(t, err)
	port, err := rpc.ParseServerAnnouncement(buf[:n])
	assert.NilErr(t, err)
	assert.DeepEqual(t, port, snd.StreamAddr().Port())

	cancel()
	assert.ErrorIs(t, assert.ChanWritten(t, runErr), context.Canceled)
}
