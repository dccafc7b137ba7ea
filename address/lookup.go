/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package address

import (
	"context"
	"net"
)

// Lookup performs the one blocking name-lookup step assigned to a
// resolver worker. The process-wide DNS/getaddrinfo facility itself is
// out of scope here; this just calls it.
func Lookup(ctx context.Context, hostname string) ([]net.IP, error) {
	ipAddrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, 0, len(ipAddrs))
	for _, a := range ipAddrs {
		out = append(out, a.IP)
	}
	return out, nil
}

// ReverseNumeric returns the canonical numeric text form of ip, used on
// accept/receive paths in place of a reverse-DNS lookup (i.e. never a
// PTR lookup — just the address printed back out, equivalent to a
// getnameinfo(NI_NUMERICHOST) call).
func ReverseNumeric(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// Publish is the resolver worker's single mutation point: install either
// a resolved or failed outcome. Exactly one of (records, failErr) is
// used.
func (a *Address) Publish(records []net.IP, failErr error) {
	if failErr != nil {
		a.publishFailed(failErr.Error())
		return
	}
	human := ""
	if len(records) > 0 {
		human = ReverseNumeric(records[0])
	}
	a.publishResolved(records, human)
}
