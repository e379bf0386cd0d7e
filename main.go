package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/gregLibert/u2f-transport/pkg/iso7816"
	"github.com/gregLibert/u2f-transport/pkg/tlv"
	"github.com/gregLibert/u2f-transport/pkg/transport"
	"github.com/gregLibert/u2f-transport/pkg/transport/pcsc"
	"github.com/gregLibert/u2f-transport/pkg/u2f"
	"github.com/gregLibert/u2f-transport/pkg/u2fhid"
)

var (
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable debug logging",
	}
	transportFlag = cli.StringFlag{
		Name:   "transport",
		Value:  "u2f-hid",
		Usage:  "transport to use: u2f-hid, u2f-card or pcsc",
		EnvVar: "U2FAPDU_TRANSPORT",
	}
	originFlag = cli.StringFlag{
		Name:   "origin",
		Usage:  "origin (appId) of the U2F sign requests",
		EnvVar: "U2FAPDU_ORIGIN",
	}
	scrambleKeyFlag = cli.StringFlag{
		Name:   "scramble-key",
		Usage:  "ASCII key shared with the device application",
		EnvVar: "U2FAPDU_SCRAMBLE_KEY",
	}
	timeoutFlag = cli.DurationFlag{
		Name:  "timeout",
		Value: u2f.DefaultTimeout,
		Usage: "time allowed for one U2F sign",
	}
	statusFlag = cli.StringFlag{
		Name:  "status",
		Usage: "comma separated status words to accept (e.g. 9000,6A82); empty accepts any",
	}
	readerFlag = cli.StringFlag{
		Name:   "reader",
		Usage:  "PC/SC reader name (first reader if empty)",
		EnvVar: "U2FAPDU_READER",
	}
)

var commandList = cli.Command{
	Name:   "list",
	Usage:  "list readers, authenticators and available transports",
	Action: list,
}

var commandExchange = cli.Command{
	Name:      "exchange",
	Usage:     "send an APDU and print the response",
	ArgsUsage: "<apdu hex>",
	Flags: []cli.Flag{
		transportFlag,
		originFlag,
		scrambleKeyFlag,
		timeoutFlag,
		statusFlag,
		readerFlag,
	},
	Action: exchange,
}

func main() {
	app := cli.NewApp()
	app.Name = "u2fapdu"
	app.Usage = "exchange APDUs with a device over PC/SC or a U2F carrier"
	app.Flags = []cli.Flag{verboseFlag}
	app.Commands = []cli.Command{commandList, commandExchange}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool(verboseFlag.Name) {
			level.Set(slog.LevelDebug)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// list prints PC/SC readers, U2F HID authenticators and the carrier availability.
func list(c *cli.Context) error {
	ctx := context.Background()

	fmt.Println(">> PC/SC readers")
	if readers, err := pcsc.Readers(); err != nil {
		slog.Warn("Failed to list readers", "error", err)
	} else {
		for _, r := range readers {
			fmt.Printf("   - %s\n", r)
		}
	}

	fmt.Println(">> U2F HID authenticators")
	if devices, err := u2fhid.Enumerate(); err != nil {
		slog.Warn("Failed to list authenticators", "error", err)
	} else {
		for _, d := range devices {
			fmt.Printf("   - %04X:%04X %s %s (%s)\n", d.VendorID, d.ProductID, d.Manufacturer, d.Product, d.Path)
		}
	}

	fmt.Println(">> Transports")
	for _, d := range u2f.List(ctx, u2fhid.SupportChecker{}) {
		fmt.Printf("   - %s (u2f-hid)\n", d.Name)
	}
	fmt.Println("   - pcsc")
	fmt.Println("   - u2f-card")
	return nil
}

// exchange sends the APDU given as arguments over the selected transport.
func exchange(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() == 0 {
		return errors.New("missing APDU")
	}
	raw, err := tlv.ParseHex(c.Args()...)
	if err != nil {
		return err
	}
	cmd, err := iso7816.ParseCommand(raw)
	if err != nil {
		return err
	}
	allowed, err := parseStatusList(c.String(statusFlag.Name))
	if err != nil {
		return err
	}

	registry := newRegistry(c)
	tr, err := registry.Open(ctx, c.String(transportFlag.Name))
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			slog.Warn("Failed to close transport", "error", err)
		}
	}()

	trace, err := iso7816.NewClient(tr).Send(ctx, cmd)
	for _, t := range trace {
		slog.Debug("APDU", "command", t.Command.String(), "response", t.Response.String())
	}
	if err != nil {
		return err
	}

	last := trace.Last().Response
	if err := transport.CheckStatus(last.Bytes(), allowed); err != nil {
		return err
	}

	data := trace.Data()
	fmt.Printf("%X%s\n", data, last.Status.Hex())
	fmt.Printf(">> %s\n", last.Status.Verbose())

	if len(data) > 0 {
		if lines, err := tlv.Describe(data); err == nil {
			for _, l := range lines {
				fmt.Println(l)
			}
		} else {
			slog.Debug("Response is not BER-TLV", "error", err)
		}
	}
	return nil
}

// newRegistry wires the transports selectable from the command line.
func newRegistry(c *cli.Context) *transport.Registry {
	logger := slog.Default()
	reader := c.String(readerFlag.Name)
	origin := c.String(originFlag.Name)
	key := c.String(scrambleKeyFlag.Name)
	opts := []u2f.Option{u2f.WithTimeout(c.Duration(timeoutFlag.Name)), u2f.WithLogger(logger)}

	r := transport.NewRegistry()

	r.Register("pcsc", func(context.Context) (transport.Transport, error) {
		card, err := pcsc.Open(reader, logger)
		if err != nil {
			return nil, err
		}
		return card, nil
	})

	r.Register("u2f-card", func(context.Context) (transport.Transport, error) {
		card, err := pcsc.Open(reader, logger)
		if err != nil {
			return nil, err
		}
		t := u2f.Open(u2f.NewCardSigner(card, key), origin, opts...)
		t.SetScrambleKey(key)
		return &carrier{Transport: t, device: card}, nil
	})

	r.Register("u2f-hid", func(ctx context.Context) (transport.Transport, error) {
		dev, err := u2fhid.OpenFirst(ctx, logger)
		if err != nil {
			return nil, err
		}
		t := u2f.Open(u2fhid.NewSigner(dev, logger), origin, opts...)
		t.SetScrambleKey(key)
		return &carrier{Transport: t, device: dev}, nil
	})

	return r
}

// carrier releases the device behind a u2f.Transport on Close.
type carrier struct {
	*u2f.Transport
	device interface{ Close() error }
}

func (c *carrier) Close() error {
	if err := c.Transport.Close(); err != nil {
		return err
	}
	return c.device.Close()
}

func parseStatusList(s string) ([]iso7816.StatusWord, error) {
	if s == "" {
		return nil, nil
	}
	var allowed []iso7816.StatusWord
	for _, field := range strings.Split(s, ",") {
		sw, err := iso7816.ParseStatusWord(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, sw)
	}
	return allowed, nil
}
