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

package serversession

import (
	"time"

	"github.com/axeda/agentembedded/emessage"
	"github.com/axeda/agentembedded/internal/config"
)

// Registration renders this device's registration fragment from its
// configured identity, binding emessage's generic builder to the
// config.DeviceConfig shape serversession works with.
func Registration(timestamp string, device config.DeviceConfig, pingRate time.Duration) string {
	return emessage.Registration(timestamp, pingRate, device.RegistrationKind, device.ModelNumber, device.SerialNumber, device.Owner)
}

// OnlineFragment renders the device's online/offline status fragment.
func OnlineFragment(online bool) string { return emessage.Online(online) }

// Ping renders the device's ping fragment.
func Ping(timestamp string) string { return emessage.Ping(timestamp) }
