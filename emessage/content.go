/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package emessage

import (
	"fmt"
	"strings"
	"time"
)

// esc escapes an XML attribute value's reserved characters, matching
// what AeXMLElementAddAttribute's writer side does byte-for-byte.
func esc(s string) string {
	r := strings.NewReplacer(
		`&`, "&amp;",
		`<`, "&lt;",
		`>`, "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

// Registration renders a <Re> element (AeDRMEMessageAddRegistration),
// the one-time device-identity announcement sent on first contact or
// after a ping-rate change. kind is 0=gateway, 1=gateway-managed device,
// 2=auto-discovered device, 3=connector device, matching the AeDRMEMessage.c
// comment block's "y=#" legend.
func Registration(timestamp string, pingRate time.Duration, kind int, modelNumber, serialNumber, owner string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Re r="%d" t="%s" y="%d">`, int64(pingRate/time.Second), esc(timestamp), kind)
	fmt.Fprintf(&b, `<Gw><De mn="%s" sn="%s" ow="%s"/></Gw>`, esc(modelNumber), esc(serialNumber), esc(owner))
	b.WriteString("</Re>")
	return b.String()
}

// Online renders <Ds ol="0|1"/> (AeDRMEMessageAddOnline).
func Online(online bool) string {
	v := "0"
	if online {
		v = "1"
	}
	return fmt.Sprintf(`<Ds ol="%s"/>`, v)
}

// Ping renders <Pi t="..."/> (AeDRMEMessageAddPing).
func Ping(timestamp string) string {
	return fmt.Sprintf(`<Pi t="%s"/>`, esc(timestamp))
}

// DataItem is one <Di> child of a <Da> data element.
type DataItem struct {
	Name      string
	Value     string
	Type      string // e.g. "string", "integer", "float", "digital", "dateTime"
	Quality   string // "good", "bad", "uncertain" — empty omits the attribute
	Timestamp string // empty means "same as the containing <Da>"
}

// Data renders a <Da> element carrying one or more data items
// (AeDRMEMessageAddDataItem's accumulation into a shared container).
func Data(timestamp string, items []DataItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Da t="%s">`, esc(timestamp))
	for _, it := range items {
		b.WriteString(`<Di`)
		fmt.Fprintf(&b, ` n="%s"`, esc(it.Name))
		if it.Timestamp != "" {
			fmt.Fprintf(&b, ` t="%s"`, esc(it.Timestamp))
		}
		if it.Type != "" {
			fmt.Fprintf(&b, ` ty="%s"`, esc(it.Type))
		}
		if it.Quality != "" {
			fmt.Fprintf(&b, ` q="%s"`, esc(it.Quality))
		}
		fmt.Fprintf(&b, `>%s</Di>`, esc(it.Value))
	}
	b.WriteString("</Da>")
	return b.String()
}

// Alarm renders an <Al> element (AeDRMEMessageAddAlarm).
func Alarm(timestamp, name string, severity int, description, condition string, active, acknowledged bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Al t="%s" n="%s" s="%d"`, esc(timestamp), esc(name), severity)
	if description != "" {
		fmt.Fprintf(&b, ` ds="%s"`, esc(description))
	}
	if condition != "" {
		fmt.Fprintf(&b, ` ty="%s"`, esc(condition))
	}
	fmt.Fprintf(&b, ` ac="%s" ak="%s"/>`, boolFlag(active), boolFlag(acknowledged))
	return b.String()
}

// Event renders an <Ev> element (AeDRMEMessageAddEvent).
func Event(timestamp, name string, severity int, message string) string {
	return fmt.Sprintf(`<Ev t="%s" n="%s" s="%d" m="%s"/>`, esc(timestamp), esc(name), severity, esc(message))
}

// Email renders an <Em> element (AeDRMEMessageAddEmail).
func Email(recipients, from, subject, server, contentType, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Em to="%s" fr="%s" su="%s" sv="%s"`, esc(recipients), esc(from), esc(subject), esc(server))
	if contentType != "" {
		fmt.Fprintf(&b, ` ct="%s"`, esc(contentType))
	}
	fmt.Fprintf(&b, `>%s</Em>`, esc(body))
	return b.String()
}

// FileUploadRequest renders an <Ur> element requesting the server initiate
// a file upload from this device (AeDRMEMessageAddUploadRequest /
// EMESSAGE_ELEMENT_UPLOAD_REQUEST).
func FileUploadRequest(clientID, hint string, priority int, compression bool, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Ur ci="%s" h="%s" p="%d" cm="%s">`, esc(clientID), esc(hint), priority, boolFlag(compression))
	for _, f := range files {
		fmt.Fprintf(&b, `<F n="%s" d="n"/>`, esc(f))
	}
	b.WriteString("</Ur>")
	return b.String()
}

// RemoteInterfaceAnnounce renders a <Pr> element advertising a remote
// desktop/application interface (AeDRMEMessageAddDeviceAppItem — the
// device-application element, original source calls this the "remote
// interface" in its public API naming).
func RemoteInterfaceAnnounce(name, description, launchType string, connectable bool) string {
	return fmt.Sprintf(`<Pr n="%s" ds="%s" lt="%s" cn="%s"/>`, esc(name), esc(description), esc(launchType), boolFlag(connectable))
}

// SoapStatus renders a <Cs> element reporting the outcome of a previously
// dispatched SOAP command (AeDRMEMessageAddSOAPCommandStatus / C8).
func SoapStatus(timestamp, commandID string, statusCode int, reason, userID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Cs t="%s" ii="%s" sc="%d"`, esc(timestamp), esc(commandID), statusCode)
	if reason != "" {
		fmt.Fprintf(&b, ` sr="%s"`, esc(reason))
	}
	if userID != "" {
		fmt.Fprintf(&b, ` ui="%s"`, esc(userID))
	}
	b.WriteString("/>")
	return b.String()
}

// PackageStatus renders a <Ps> element reporting file-transfer package
// progress (AeDRMEMessageAddPackageStatus / C9-C10).
func PackageStatus(jobID string, statusCode int, errorCode, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Ps ji="%s" sc="%d"`, esc(jobID), statusCode)
	if errorCode != "" {
		fmt.Fprintf(&b, ` ec="%s"`, esc(errorCode))
	}
	if instruction != "" {
		fmt.Fprintf(&b, ` ii="%s"`, esc(instruction))
	}
	b.WriteString("/>")
	return b.String()
}

// DesktopApplication renders a <DAv> element reporting the application a
// remote-session desktop probe discovered listening on the probe port
// (spec.md §4.11 "post a <DAv> element ... describing the discovered
// desktop application"). The probe protocol itself is grounded on
// AeRemoteDesktopProbe.h; this element's attribute names are invented in
// the established two-letter idiom since the probe's wire reply, not an
// EMessage fragment, is what original_source actually defines.
func DesktopApplication(name, version, platform string, rfbCompatible bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<DAv n="%s" v="%s" pl="%s" rfb="%s"/>`,
		esc(name), esc(version), esc(platform), boolFlag(rfbCompatible))
	return b.String()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
