// Command pillctl is a CLI client for the pill monitor HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/pill-monitor/internal/httpclient"
	"github.com/and161185/pill-monitor/internal/model"
	"github.com/and161185/pill-monitor/internal/service"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pillmon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pillmon")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run: pillctl token)")
	}
	return tf.AccessToken, nil
}

// ---- api ----

type api struct {
	hc    *httpclient.Client
	token string
}

func newAPI(addr, token string) (*api, error) {
	hc, err := httpclient.NewWithBaseURL(addr, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return &api{hc: hc, token: token}, nil
}

func (a *api) call(ctx context.Context, method, path string, in, out any) error {
	h := map[string]string{"Authorization": "Bearer " + a.token}
	if out == nil {
		_, err := a.hc.Do(ctx, method, path, h, in)
		return err
	}
	return a.hc.DoJSON(ctx, method, path, h, in, out)
}

type slot struct {
	Medicines []model.Medicine `json:"medicines"`
	Alarm     int              `json:"alarm"`
	AlarmTime string           `json:"alarmTime"`
}

func (a *api) inventory(ctx context.Context) (map[string]slot, error) {
	var inv map[string]slot
	if err := a.call(ctx, http.MethodGet, "/inventory", nil, &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// resolve turns a medicine id or name into an id.
func (a *api) resolve(ctx context.Context, d model.DoseKey, ref string) (string, error) {
	inv, err := a.inventory(ctx)
	if err != nil {
		return "", err
	}
	return findMedicine(inv[d.String()].Medicines, ref)
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `pillctl CLI
Usage:
  pillctl -addr http://HOST:PORT <cmd> [args]

Commands:
  version
  token      -key <jwt key> [-sub caregiver] [-ttl 24h]   (saves token)
  status
  stats
  add        -dose <morning|midday|evening> -name <medicine>
  rm         -dose <dose> -med <id|name>
  inc        -dose <dose> -med <id|name>
  dec        -dose <dose> -med <id|name>
  take       -dose <dose>
  alarm      -dose <dose> -at HH:MM
  sync
  history    [-tz Europe/Berlin]
  export
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	addr := flag.String("addr", envOr("PILLMON_API", "http://localhost:8080"), "API base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("pillctl %s (%s)\n", version, buildDate)
		return
	case "token":
		fs := flag.NewFlagSet("token", flag.ExitOnError)
		key := fs.String("key", os.Getenv("PILLMON_JWT_KEY"), "HS256 signing key")
		sub := fs.String("sub", "caregiver", "token subject")
		ttl := fs.Duration("ttl", 24*time.Hour, "token TTL")
		_ = fs.Parse(args)
		if *key == "" {
			fail(errors.New("need -key or PILLMON_JWT_KEY"))
		}
		tok, err := service.NewTokenService([]byte(*key), *ttl).Issue(*sub)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
			fail(err)
		}
		fmt.Println("ok, expires", tok.ExpiresAt.Format(time.RFC3339))
		return
	}

	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	a, err := newAPI(*addr, token)
	if err != nil {
		fail(err)
	}

	switch cmd {
	case "status":
		var out any
		if err := a.call(ctx, http.MethodGet, "/status", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "stats":
		var out any
		if err := a.call(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		dose := fs.String("dose", "", "dose")
		name := fs.String("name", "", "medicine name")
		_ = fs.Parse(args)
		d := mustDose(*dose)
		var m model.Medicine
		path := "/doses/" + d.String() + "/medicines"
		if err := a.call(ctx, http.MethodPost, path, map[string]string{"name": *name}, &m); err != nil {
			fail(err)
		}
		printJSON(m)

	case "rm", "inc", "dec":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dose := fs.String("dose", "", "dose")
		med := fs.String("med", "", "medicine id or name")
		_ = fs.Parse(args)
		d := mustDose(*dose)
		id, err := a.resolve(ctx, d, *med)
		if err != nil {
			fail(err)
		}
		base := "/doses/" + d.String() + "/medicines/" + url.PathEscape(id)
		if cmd == "rm" {
			if err := a.call(ctx, http.MethodDelete, base, nil, nil); err != nil {
				fail(err)
			}
			fmt.Println("ok")
			return
		}
		delta := 1
		if cmd == "dec" {
			delta = -1
		}
		var out any
		if err := a.call(ctx, http.MethodPost, base+"/adjust", map[string]int{"delta": delta}, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "take":
		fs := flag.NewFlagSet("take", flag.ExitOnError)
		dose := fs.String("dose", "", "dose")
		_ = fs.Parse(args)
		d := mustDose(*dose)
		var out any
		if err := a.call(ctx, http.MethodPost, "/doses/"+d.String()+"/take", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "alarm":
		fs := flag.NewFlagSet("alarm", flag.ExitOnError)
		dose := fs.String("dose", "", "dose")
		at := fs.String("at", "", "alarm time HH:MM")
		_ = fs.Parse(args)
		d := mustDose(*dose)
		minutes, err := parseHHMM(*at)
		if err != nil {
			fail(err)
		}
		if err := a.call(ctx, http.MethodPut, "/doses/"+d.String()+"/alarm", map[string]int{"minutes": minutes}, nil); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "sync":
		var out any
		if err := a.call(ctx, http.MethodPost, "/sync", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		tz := fs.String("tz", "", "IANA time zone for day grouping")
		_ = fs.Parse(args)
		path := "/history"
		if *tz != "" {
			path += "?tz=" + url.QueryEscape(*tz)
		}
		var out any
		if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	case "export":
		var out any
		if err := a.call(ctx, http.MethodPost, "/history/export", nil, &out); err != nil {
			fail(err)
		}
		printJSON(out)

	default:
		usage()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustDose(s string) model.DoseKey {
	d, err := model.ParseDose(s)
	if err != nil {
		fail(err)
	}
	return d
}

func fail(err error) {
	var he *httpclient.HTTPError
	if errors.As(err, &he) {
		fmt.Fprintf(os.Stderr, "api error: status=%d %s\n", he.StatusCode, he.Body)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
