// Command tncd is the composition layer for the OFDM TNC: it parses
// flags, loads settings, opens the audio device and PTT backend, binds
// the KISS TCP port, and runs the core until interrupted. None of the
// logic here is part of the core — it is the thin CLI shell spec.md §1
// calls out as external to the core, grounded on cmd/direwolf/main.go's
// flag layout and startup sequence (pflag, open audio before spawning
// the worker threads, exit code 1 on any fatal startup error).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/n7dwj/ofdmtnc/internal/audio"
	"github.com/n7dwj/ofdmtnc/internal/config"
	"github.com/n7dwj/ofdmtnc/internal/discovery"
	"github.com/n7dwj/ofdmtnc/internal/logging"
	"github.com/n7dwj/ofdmtnc/internal/modem"
	"github.com/n7dwj/ofdmtnc/internal/ptt"
	"github.com/n7dwj/ofdmtnc/internal/server"
	"github.com/n7dwj/ofdmtnc/internal/tnc"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		bindAddr       = pflag.String("bind", "0.0.0.0", "KISS TCP bind address")
		port           = pflag.Int("port", 8001, "KISS TCP port")
		settingsFile   = pflag.String("settings", "", "Path to a plaintext key=value settings file")
		presetsFile    = pflag.String("presets", "", "Path to a presets.yaml file")
		presetName     = pflag.String("preset", "", "Name of a preset from --presets to apply on top of --settings")
		callSign       = pflag.StringP("callsign", "c", "N0CALL", "Station callsign (up to 9 chars: letters, digits, space, /)")
		modName        = pflag.String("mod", "qpsk", "Modulation: bpsk, qpsk, 8psk, qam16, qam64, qam256, qam1024, qam4096")
		rateName       = pflag.String("rate", "1/2", "Polar code rate: 1/2, 2/3, 3/4, 5/6, 1/4")
		shortFrame     = pflag.Bool("short", false, "Use the short-frame variant of the selected modulation")
		centerFreq     = pflag.Float64("center-freq", 1500, "OFDM tone-grid center frequency offset, Hz")
		sampleRate     = pflag.Int("sample-rate", 48000, "Audio sample rate, Hz")
		audioInIdx     = pflag.Int("audio-in", -1, "PortAudio input device index (-1 = default, use --audio-loopback for none)")
		audioOutIdx    = pflag.Int("audio-out", -1, "PortAudio output device index (-1 = default)")
		loopback       = pflag.Bool("audio-loopback", false, "Use an in-memory loopback device instead of real audio hardware")
		listAudio      = pflag.Bool("list-audio", false, "List available audio devices and exit")
		pttName        = pflag.String("ptt", "none", "PTT backend: none, rigctl, vox, serial, cm108")
		pttHost        = pflag.String("ptt-host", "localhost:4532", "rigctl host:port")
		pttDevice      = pflag.String("ptt-device", "", "Serial tty or CM108 hidraw device path")
		pttGPIO        = pflag.Int("ptt-gpio", 3, "CM108 GPIO pin (1-4)")
		pttInverse     = pflag.Bool("ptt-inverse", false, "Invert serial PTT line sense")
		slotTimeMs     = pflag.Int("csma-slot-time", 100, "CSMA slot time, ms")
		persist        = pflag.Int("csma-persist", 63, "CSMA p-persistence, 0-255")
		carrierSenseMs = pflag.Int("csma-carrier-sense-ms", 100, "CSMA: RMS sampling window before each backoff decision, ms")
		carrierThresh  = pflag.Float64("csma-carrier-threshold-db", -30, "CSMA: RMS level above which the channel is occupied, dB")
		maxBackoff     = pflag.Int("csma-max-backoff-slots", 10, "CSMA: bound on backoff width and iteration count")
		fullDuplex     = pflag.Bool("full-duplex", false, "Accept FULLDUPLEX from KISS clients (half-duplex is still enforced)")
		maxChunk       = pflag.Int("max-payload", 200, "Maximum fragment payload size in bytes; 0 disables fragmentation")
		dnssdOn        = pflag.Bool("dnssd", true, "Advertise the KISS TCP port over mDNS/DNS-SD")
		dnssdName      = pflag.String("dnssd-name", "", "mDNS service instance name (default: derived from hostname)")
		logLevel       = pflag.String("log-level", "info", "Log level: debug, info, warn, error")
		tsFormat       = pflag.StringP("timestamp-format", "T", "", "Precede each logged RX/TX frame with a strftime format timestamp")
	)
	pflag.Parse()

	logger := logging.New(os.Stderr, *logLevel)

	if *listAudio {
		return listAudioDevices()
	}

	snap := config.Default()
	if *settingsFile != "" {
		loaded, err := config.LoadFile(*settingsFile, snap)
		if err != nil {
			logger.Error("failed to load settings file", "err", err)
			return 1
		}
		snap = loaded
	}
	if *presetsFile != "" && *presetName != "" {
		presets, err := config.LoadPresets(*presetsFile)
		if err != nil {
			logger.Error("failed to load presets file", "err", err)
			return 1
		}
		preset, ok := presets[*presetName]
		if !ok {
			logger.Error("unknown preset", "name", *presetName)
			return 1
		}
		applied, err := preset.Apply(snap)
		if err != nil {
			logger.Error("failed to apply preset", "err", err)
			return 1
		}
		snap = applied
	}

	mod, err := modem.ParseModulation(*modName)
	if err != nil {
		logger.Error("invalid mode", "err", err)
		return 1
	}
	rate, err := modem.ParseCodeRate(*rateName)
	if err != nil {
		logger.Error("invalid mode", "err", err)
		return 1
	}
	mode := modem.NewOperMode(mod, rate, *shortFrame)
	if _, err := modem.Resolve(mode); err != nil {
		logger.Error("invalid mode", "err", err)
		return 1
	}
	if _, err := modem.EncodeCallsign(*callSign); err != nil {
		logger.Error("invalid callsign", "callsign", *callSign, "err", err)
		return 1
	}

	snap.CallSign = *callSign
	snap.Mode = mode
	snap.CenterFreq = *centerFreq
	snap.SampleRate = *sampleRate
	snap.FragMaxChunk = *maxChunk
	snap.KissBindAddr = *bindAddr
	snap.KissPort = *port
	snap.DNSSDOn = *dnssdOn
	snap.DNSSDName = *dnssdName
	snap.MAC.SlotTimeMs = *slotTimeMs
	snap.MAC.Persist = *persist
	snap.MAC.CarrierSenseMs = *carrierSenseMs
	snap.MAC.CarrierThresholdDb = *carrierThresh
	snap.MAC.MaxBackoffSlots = *maxBackoff
	snap.MAC.FullDuplex = *fullDuplex
	snap.LogLevel = *logLevel
	snap.TimestampFormat = *tsFormat

	audioIn, audioOut, closeAudio, err := openAudio(*loopback, *audioInIdx, *audioOutIdx, *sampleRate)
	if err != nil {
		logger.Error("audio open failed", "err", err)
		return 1
	}
	defer closeAudio()

	backend, closeBackend, err := openPTT(*pttName, *pttHost, *pttDevice, *pttGPIO, *pttInverse)
	if err != nil {
		logger.Error("ptt connect failed", "err", err)
		return 1
	}
	defer closeBackend()

	ln, err := server.Listen(snap.KissBindAddr, snap.KissPort)
	if err != nil {
		logger.Error("kiss listen failed", "err", err)
		return 1
	}
	defer ln.Close()

	store := config.NewStore(snap)
	core := tnc.New(store, audioIn, audioOut, backend, logger)
	kissSrv := core.NewKissServer(ln)

	var advertiser *discovery.Advertiser
	if snap.DNSSDOn {
		advertiser, err = discovery.Advertise(snap.DNSSDName, snap.KissPort, logger)
		if err != nil {
			logger.Warn("dns-sd advertisement failed, continuing without it", "err", err)
		}
	}
	if advertiser != nil {
		defer advertiser.Stop()
	}

	if !*loopback {
		hotplug, err := audio.Start(func(action, device string) {
			if action != "add" {
				return
			}
			logger.Info("sound card added, reopening audio", "device", device)
			dev, err := audio.Open(*audioInIdx, *audioOutIdx, float64(*sampleRate), 1024, 8)
			if err != nil {
				logger.Warn("reconnect_audio failed", "err", err)
				return
			}
			if err := core.ReconnectAudio(dev, dev); err != nil {
				logger.Warn("reconnect_audio failed", "err", err)
			}
		})
		if err != nil {
			logger.Warn("hotplug monitor unavailable, continuing without it", "err", err)
		} else {
			defer hotplug.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("tnc starting",
		"bind", snap.KissBindAddr, "port", snap.KissPort,
		"callsign", snap.CallSign, "mode", mod.String(), "rate", *rateName,
	)

	go kissSrv.Run(ctx)
	core.Run(ctx)

	logger.Info("tnc stopped")
	return 0
}

func listAudioDevices() int {
	if err := audio.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "audio init failed:", err)
		return 1
	}
	defer audio.Terminate()

	devices, err := audio.ListDevices()
	if err != nil {
		fmt.Fprintln(os.Stderr, "list devices failed:", err)
		return 1
	}
	for i, d := range devices {
		fmt.Printf("[%d] %s (in=%d out=%d)\n", i, d.Name, d.MaxInputChannels, d.MaxOutputChannels)
	}
	return 0
}

func openAudio(loopback bool, inIdx, outIdx, sampleRate int) (in, out audio.Device, closeFn func(), err error) {
	if loopback {
		lb := audio.NewLoopback()
		return lb, lb, func() {}, nil
	}
	if err := audio.Init(); err != nil {
		return nil, nil, nil, fmt.Errorf("audio init: %w", err)
	}
	dev, err := audio.Open(inIdx, outIdx, float64(sampleRate), 1024, 8)
	if err != nil {
		audio.Terminate()
		return nil, nil, nil, err
	}
	return dev, dev, func() { dev.Close(); audio.Terminate() }, nil
}

func openPTT(name, host, device string, gpio int, inverse bool) (ptt.Backend, func(), error) {
	switch name {
	case "", "none":
		return ptt.None{}, func() {}, nil
	case "rigctl":
		r, err := ptt.DialRigctl(host, 0)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	case "vox":
		v := ptt.NewVox(1500, 200)
		v.TailMillis = 100
		return v, func() {}, nil
	case "serial":
		s, err := ptt.DialSerial(device, ptt.LineRTS, inverse)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "cm108":
		c, err := ptt.NewCM108(device, gpio)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ptt backend %q", name)
	}
}
