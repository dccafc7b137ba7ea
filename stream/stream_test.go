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

package stream_test

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/netsock/address"
	. "github.com/nabbar/netsock/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// acceptEventually polls srv.Accept() until it yields a connection or the
// deadline passes, standing in for the multiplexer in these narrow
// package tests.
func acceptEventually(srv *Server) *Stream {
	var conn *Stream
	Eventually(func() *Stream {
		c, err := srv.Accept()
		Expect(err).ToNot(HaveOccurred())
		if c != nil {
			conn = c
		}
		return conn
	}, 2*time.Second, 5*time.Millisecond).ShouldNot(BeNil())
	return conn
}

// connectedEventually drives a pending connect with zero-timeout
// WaitConnected polls, standing in for the multiplexer.
func connectedEventually(c *Stream) {
	Eventually(func() Status {
		return c.WaitConnected(context.Background(), 0)
	}, 2*time.Second, 5*time.Millisecond).ShouldNot(Equal(Pending))
}

func newLoopbackServer() *Server {
	srv, err := Listen(net.ParseIP("127.0.0.1"), 0, 4)
	Expect(err).ToNot(HaveOccurred())
	return srv
}

func dialServer(srv *Server) *Stream {
	port, err := srv.LocalPort()
	Expect(err).ToNot(HaveOccurred())

	peer := address.FromNative(net.ParseIP("127.0.0.1"), "127.0.0.1")
	c, err := Connect(peer, port)
	Expect(err).ToNot(HaveOccurred())
	return c
}

var _ = Describe("Connect and Accept", func() {
	It("completes a handshake and both ends reach Connected", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()

		client := dialServer(srv)
		defer client.Destroy()

		server := acceptEventually(srv)
		defer server.Destroy()

		connectedEventually(client)
		st, err := client.Status()
		Expect(st).To(Equal(Connected))
		Expect(err).ToNot(HaveOccurred())

		st, err = server.Status()
		Expect(st).To(Equal(Connected))
		Expect(err).ToNot(HaveOccurred())
	})

	It("rejects an unresolved peer address", func() {
		peer := address.NewInProgress("example.test")
		_, err := Connect(peer, 80)
		Expect(err).To(HaveOccurred())
	})

	It("WaitConnected blocks until the handshake resolves", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()

		client := dialServer(srv)
		defer client.Destroy()
		server := acceptEventually(srv)
		defer server.Destroy()

		st := client.WaitConnected(context.Background(), 2000)
		Expect(st).To(Equal(Connected))
	})

	It("WaitConnected returns immediately once already resolved", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()

		client := dialServer(srv)
		defer client.Destroy()
		server := acceptEventually(srv)
		defer server.Destroy()

		connectedEventually(client)
		Expect(client.WaitConnected(context.Background(), 0)).To(Equal(Connected))
	})
})

var _ = Describe("Write/Read round trip", func() {
	It("delivers bytes written on one end through the other", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()

		client := dialServer(srv)
		defer client.Destroy()
		server := acceptEventually(srv)
		defer server.Destroy()

		connectedEventually(client)

		payload := []byte("hello, netsock")
		Expect(client.Write(payload)).To(Succeed())

		buf := make([]byte, 64)
		var n int
		Eventually(func() int {
			var rerr error
			n, rerr = server.Read(buf)
			Expect(rerr).ToNot(HaveOccurred())
			return n
		}, 2*time.Second, 5*time.Millisecond).Should(BeNumerically(">", 0))

		Expect(buf[:n]).To(Equal(payload))
	})

	It("PendingWrites and Drain account for queued output", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()

		client := dialServer(srv)
		defer client.Destroy()
		server := acceptEventually(srv)
		defer server.Destroy()

		connectedEventually(client)

		Expect(client.Write([]byte("x"))).To(Succeed())
		Expect(client.PendingWrites()).To(BeNumerically(">=", 0))

		// a peer that never reads would stall Drain on a full socket
		// buffer, so keep draining the far end concurrently.
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			buf := make([]byte, 4096)
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, rerr := server.Read(buf); rerr != nil {
					return
				}
			}
		}()

		large := make([]byte, 100000)
		Expect(client.Write(large)).To(Succeed())
		Expect(client.Drain(context.Background(), 2000)).To(Equal(0))
	})

	It("Write of zero bytes is a no-op", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()
		client := dialServer(srv)
		defer client.Destroy()
		server := acceptEventually(srv)
		defer server.Destroy()
		connectedEventually(client)

		Expect(client.Write(nil)).To(Succeed())
		Expect(client.PendingWrites()).To(Equal(0))
	})
})

var _ = Describe("Destroy", func() {
	It("leaves the stream safely inert", func() {
		srv := newLoopbackServer()
		defer srv.Destroy()
		client := dialServer(srv)
		server := acceptEventually(srv)
		defer server.Destroy()
		connectedEventually(client)

		client.Destroy()
	})
})
