package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIPC_HandleConnection(t *testing.T) {
	d := startTestDaemon(t)

	server, client := net.Pipe()
	go handleIPCConnection(context.Background(), server, d.events, time.Second, testLogger())
	defer client.Close()

	r := bufio.NewReader(client)
	roundTrip := func(line string) IPCResponse {
		t.Helper()
		client.SetDeadline(time.Now().Add(2 * time.Second))
		if _, err := client.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		raw, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp IPCResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		return resp
	}

	if resp := roundTrip(`not json`); resp.Status != "error" || !strings.Contains(resp.Error, "parse action") {
		t.Fatalf("bad json response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"explode"}`); resp.Status != "error" || !strings.Contains(resp.Error, "unknown action type") {
		t.Fatalf("unknown type response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"send_command","data":{"command":"R"}}`); resp.Status != "error" || !strings.Contains(resp.Error, "not connected") {
		t.Fatalf("send without link response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"connect","data":{"port":"/dev/ttyFAKE"}}`); resp.Status != "ok" {
		t.Fatalf("connect response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"send_command","data":{"command":"R"}}`); resp.Status != "ok" {
		t.Fatalf("send response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"disconnect"}`); resp.Status != "ok" {
		t.Fatalf("disconnect response = %+v", resp)
	}
}

func TestIPC_ServerAndClient(t *testing.T) {
	d := startTestDaemon(t)
	socketPath := filepath.Join(t.TempDir(), "argbd.sock")

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- runIPCServer(ctx, socketPath, d.events, time.Second, testLogger())
	}()

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, "socket not created")

	if err := SendIPCAction(socketPath, Connect{Port: "/dev/ttyFAKE"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := SendIPCAction(socketPath, PlayScene{Name: "calm-fire"}); err != nil {
		t.Fatalf("scene: %v", err)
	}
	if err := SendIPCAction(socketPath, PlayScene{Name: "nope"}); err == nil || !strings.Contains(err.Error(), "unknown scene") {
		t.Fatalf("expected unknown scene error, got %v", err)
	}

	cancel()
	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("server: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("IPC server did not stop")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatalf("socket file left behind: %v", err)
	}
}
