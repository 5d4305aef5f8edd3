// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package admin is the operator's web portal: configuration, firmware
// upload, update checks and status. Each operation is a method taking a
// plain request value and returning a Response; http.go adapts them to
// routes.
package admin

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rmfalco89/esp-project-template/pkg/bootmode"
	"github.com/rmfalco89/esp-project-template/pkg/devcfg"
	"github.com/rmfalco89/esp-project-template/pkg/device"
	"github.com/rmfalco89/esp-project-template/pkg/installer"
	"github.com/rmfalco89/esp-project-template/pkg/log"
	"github.com/rmfalco89/esp-project-template/pkg/net/link"
	"github.com/rmfalco89/esp-project-template/pkg/store"
	"github.com/rmfalco89/esp-project-template/pkg/update"
	"github.com/rmfalco89/esp-project-template/pkg/update/history"
)

//go:embed templates/*.html
var tmplFS embed.FS

var tmpl = template.Must(template.ParseFS(tmplFS, "templates/*.html"))

// Response is written verbatim by the http layer.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

func text(status int, body string) Response {
	return Response{Status: status, ContentType: "text/plain; charset=utf-8", Body: body}
}

func page(status int, name string, data interface{}) Response {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Logf("rendering %s: %s", name, err)
		return text(http.StatusInternalServerError, "error: "+err.Error())
	}
	return Response{Status: status, ContentType: "text/html; charset=utf-8", Body: buf.String()}
}

// Admin holds what the handlers act on. Link and Images may be nil.
type Admin struct {
	Store    *store.Store
	Device   *device.Context
	Resolver *bootmode.Resolver
	Updates  *update.Orchestrator
	Link     *link.Monitor
	Images   *installer.DirPartition
	// Feed keeps the watchdog alive during uploads.
	Feed func()
	// ConfigModeHostname replaces an empty hostname on save.
	ConfigModeHostname string
	// async runs background work; replaced in tests.
	async func(func())
}

func (a *Admin) feed() {
	if a.Feed != nil {
		a.Feed()
	}
}

func (a *Admin) goAsync(f func()) {
	if a.async != nil {
		a.async(f)
		return
	}
	go f()
}

type maxLens struct {
	SSID, Password, Hostname, DeviceName, AuthToken int
}

type configurePage struct {
	Config devcfg.DeviceConfig
	Max    maxLens
	Error  string
}

func newConfigurePage(c *devcfg.DeviceConfig, err error) configurePage {
	p := configurePage{Max: maxLens{
		SSID:       devcfg.SSIDLen,
		Password:   devcfg.PasswordLen,
		Hostname:   devcfg.HostnameLen,
		DeviceName: devcfg.DeviceNameLen,
		AuthToken:  devcfg.AuthTokenLen,
	}}
	if c != nil {
		p.Config = *c
	} else {
		//new devices default to the heartbeat being on
		p.Config.AliveSignal = true
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// Configure renders the form, pre-filled with the active configuration.
func (a *Admin) Configure() Response {
	return page(http.StatusOK, "configure.html", newConfigurePage(a.Device.Config(), nil))
}

// SaveRequest carries the fields of the configuration form.
type SaveRequest struct {
	SSID        string
	Password    string
	Hostname    string
	DeviceName  string
	AuthToken   string
	AliveSignal bool
}

// SaveConfiguration validates and persists a new configuration. It takes
// effect through a restart: directly in Normal mode, via the config-mode
// re-check otherwise.
func (a *Admin) SaveConfiguration(req SaveRequest) Response {
	cfg := &devcfg.DeviceConfig{
		SSID:        req.SSID,
		Password:    req.Password,
		Hostname:    req.Hostname,
		DeviceName:  req.DeviceName,
		AuthToken:   req.AuthToken,
		AliveSignal: req.AliveSignal,
	}
	if cfg.Hostname == "" {
		cfg.Hostname = a.ConfigModeHostname
	}
	if err := cfg.Validate(); err != nil {
		log.Logf("rejected configuration: %s", err)
		return page(http.StatusBadRequest, "configure.html", newConfigurePage(cfg, err))
	}
	if err := devcfg.SaveConfig(a.Store, cfg); err != nil {
		log.Logf("saving configuration: %s", err)
		return page(http.StatusInternalServerError, "configure.html", newConfigurePage(cfg, err))
	}
	a.Device.SetConfig(cfg)
	log.Msgf("configuration saved for %s", cfg.SSID)
	if a.Device.Mode().InConfigMode() {
		a.Resolver.Poke()
	} else {
		a.Device.RequestRestart("configuration changed")
	}
	return text(http.StatusOK, "Configuration saved. The device will restart and connect with the provided credentials.")
}

// InvalidateConfig soft-deletes the configuration and restarts into config
// mode.
func (a *Admin) InvalidateConfig() Response {
	if err := devcfg.InvalidateConfig(a.Store); err != nil {
		log.Logf("invalidating configuration: %s", err)
		return text(http.StatusInternalServerError, "Unable to void device configuration: "+err.Error())
	}
	a.Device.SetConfig(nil)
	a.Device.RequestRestart("configuration invalidated")
	return text(http.StatusOK, "Device configuration voided. Configure at /configure. Restarting now.")
}

// CheckForUpdates starts an update check. With wait set it blocks and
// reports the outcome.
func (a *Admin) CheckForUpdates(ctx context.Context, wait bool) Response {
	if wait {
		res := a.Updates.CheckAndUpgradeNow(ctx)
		status := http.StatusOK
		switch res.Outcome {
		case update.Busy:
			status = http.StatusConflict
		case update.Failed:
			status = http.StatusInternalServerError
		}
		return text(status, res.String())
	}
	a.goAsync(func() { a.Updates.CheckAndUpgradeNow(context.Background()) })
	return text(http.StatusOK, "Checking for new firmware. This might take a few seconds...")
}

func (a *Admin) UploadForm() Response {
	return page(http.StatusOK, "upload.html", nil)
}

const uploadChunk = 4096

// ReceiveUpload drives one installer session from r. expected < 0 means
// the size is unknown.
func (a *Admin) ReceiveUpload(r io.Reader, expected int64) Response {
	sess, err := a.Updates.BeginUpload(expected)
	if errors.Is(err, installer.ErrAlreadyInProgress) {
		return text(http.StatusConflict, "Update already in progress")
	}
	if err != nil {
		log.Logf("upload: %s", err)
		return text(http.StatusInternalServerError, "Update failed at start")
	}
	buf := make([]byte, uploadChunk)
	for {
		a.feed()
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := a.Updates.AcceptUploadedChunk(sess, buf[:n]); err != nil {
				return text(http.StatusInternalServerError, "Update failed during write")
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			sess.Abort()
			log.Logf("upload %s: %s", sess.ID, rerr)
			return text(http.StatusBadRequest, "Upload interrupted")
		}
	}
	if err := a.Updates.FinishUpload(sess); err != nil {
		return text(http.StatusInternalServerError, "Update failed at end: "+err.Error())
	}
	return text(http.StatusOK, "Upload complete, device will restart.")
}

func (a *Admin) Reboot() Response {
	a.Device.RequestRestart("operator request")
	return text(http.StatusOK, "Rebooting now.")
}

// Logs returns the most recent log entries, oldest first.
func (a *Admin) Logs() Response {
	var sb strings.Builder
	for _, e := range log.Recent() {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return text(http.StatusOK, sb.String())
}

type route struct {
	Method      string
	Path        string
	Description string
}

var routes = []route{
	{"GET", "/", "this page"},
	{"GET", "/configure", "edit the device configuration"},
	{"POST", "/saveConfiguration", "store the device configuration"},
	{"GET", "/invalidateConfig", "void the device configuration and restart into config mode"},
	{"GET", "/checkForUpdates", "check the release feed and install a newer firmware"},
	{"GET", "/uploadFirmware", "upload firmware directly from the browser"},
	{"POST", "/firmwareUploadSave", "receive an uploaded firmware image"},
	{"GET", "/reboot", "restart the device"},
	{"GET", "/logs", "recent log entries"},
}

type statusPage struct {
	Name        string
	Status      device.Status
	Uptime      time.Duration
	SinceUpdate time.Duration
	Link        string
	Image       string
	History     []history.ReleaseResult
	Routes      []route
}

// Status renders the landing page.
func (a *Admin) Status() Response {
	st := a.Device.Status()
	p := statusPage{
		Name:        st.DeviceName,
		Status:      st,
		Uptime:      time.Duration(st.UptimeMillis) * time.Millisecond,
		SinceUpdate: (time.Duration(st.SinceUpdateCheck) * time.Millisecond).Round(time.Second),
		Routes:      routes,
	}
	if p.Name == "" {
		p.Name = "Unconfigured device"
	}
	p.Uptime = p.Uptime.Round(time.Second)
	if a.Link != nil && a.Link.Enabled() {
		ls, err := a.Link.Status()
		if err != nil {
			p.Link = fmt.Sprintf("%s: %s", ls.Iface, err)
		} else {
			p.Link = ls.String()
		}
	}
	if a.Images != nil {
		p.Image, _ = a.Images.Current()
	}
	if h := a.Updates.History(); h != nil {
		p.History = h.All()
	}
	return page(http.StatusOK, "status.html", p)
}
