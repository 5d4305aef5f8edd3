// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package admin

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bmizerany/pat"

	"github.com/rmfalco89/esp-project-template/pkg/log"
)

func write(w http.ResponseWriter, r Response) {
	w.Header().Set("Content-Type", r.ContentType)
	w.WriteHeader(r.Status)
	if _, err := io.WriteString(w, r.Body); err != nil {
		log.Logf("writing response: %s", err)
	}
}

func wrap(f func() Response) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { write(w, f()) }
}

// Handler returns the admin routes.
func (a *Admin) Handler() http.Handler {
	mux := pat.New()
	mux.Get("/configure", wrap(a.Configure))
	mux.Post("/saveConfiguration", http.HandlerFunc(a.saveConfiguration))
	mux.Get("/invalidateConfig", wrap(a.InvalidateConfig))
	mux.Get("/checkForUpdates", http.HandlerFunc(a.checkForUpdates))
	mux.Get("/uploadFirmware", wrap(a.UploadForm))
	mux.Post("/firmwareUploadSave", http.HandlerFunc(a.firmwareUploadSave))
	mux.Get("/reboot", wrap(a.Reboot))
	mux.Get("/logs", wrap(a.Logs))
	mux.Get("/", http.HandlerFunc(a.root))
	return mux
}

// pat matches "/" as a prefix of every path
func (a *Admin) root(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	write(w, a.Status())
}

func (a *Admin) saveConfiguration(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(1 << 16); err != nil && err != http.ErrNotMultipart {
		write(w, text(http.StatusBadRequest, fmt.Sprintf("bad form: %s", err)))
		return
	}
	_, alive := req.PostForm["alive_signal"] //checkbox is only sent if checked
	write(w, a.SaveConfiguration(SaveRequest{
		SSID:        req.PostFormValue("ssid"),
		Password:    req.PostFormValue("password"),
		Hostname:    req.PostFormValue("hostname"),
		DeviceName:  req.PostFormValue("device_name"),
		AuthToken:   req.PostFormValue("auth_token"),
		AliveSignal: alive,
	}))
}

func (a *Admin) checkForUpdates(w http.ResponseWriter, req *http.Request) {
	wait := req.URL.Query().Get("wait") != ""
	write(w, a.CheckForUpdates(req.Context(), wait))
}

// firmwareUploadSave streams the "firmware" part of a multipart upload into
// the installer without buffering it. An optional size query parameter
// enables the length check on commit.
func (a *Admin) firmwareUploadSave(w http.ResponseWriter, req *http.Request) {
	expected := int64(-1)
	if s := req.URL.Query().Get("size"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			write(w, text(http.StatusBadRequest, "bad size "+s))
			return
		}
		expected = n
	}
	mr, err := req.MultipartReader()
	if err != nil {
		write(w, text(http.StatusBadRequest, "expected multipart/form-data: "+err.Error()))
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			write(w, text(http.StatusBadRequest, "no firmware in upload"))
			return
		}
		if err != nil {
			write(w, text(http.StatusBadRequest, "reading upload: "+err.Error()))
			return
		}
		if part.FormName() != "firmware" {
			part.Close()
			continue
		}
		log.Logf("update start: %s", part.FileName())
		resp := a.ReceiveUpload(part, expected)
		part.Close()
		write(w, resp)
		return
	}
}
