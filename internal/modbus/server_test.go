package modbus

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testServer is a minimal Modbus TCP slave backed by maps.
type testServer struct {
	t        *testing.T
	listener net.Listener

	mu       sync.Mutex
	coils    map[uint16]bool
	discrete map[uint16]bool
	holding  map[uint16]uint16
	input    map[uint16]uint16
	requests int
}

// newTestServer seeds the address space before it starts serving.
func newTestServer(t *testing.T, seeds ...func(*testServer)) *testServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{
		t:        t,
		listener: l,
		coils:    make(map[uint16]bool),
		discrete: make(map[uint16]bool),
		holding:  make(map[uint16]uint16),
		input:    make(map[uint16]uint16),
	}
	for _, seed := range seeds {
		seed(s)
	}
	t.Cleanup(func() { l.Close() })

	go s.serve()
	return s
}

func (s *testServer) addr() (string, int) {
	a := s.listener.Addr().(*net.TCPAddr)
	return a.IP.String(), a.Port
}

func (s *testServer) address() string {
	return s.listener.Addr().String()
}

func (s *testServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *testServer) handle(conn net.Conn) {
	defer conn.Close()

	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		body := make([]byte, int(length)-1)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		fc := body[0]
		pdu := s.respond(fc, body[1:])

		resp := make([]byte, 7+len(pdu))
		copy(resp[0:4], header[0:4])
		binary.BigEndian.PutUint16(resp[4:6], uint16(len(pdu)+1))
		resp[6] = header[6]
		copy(resp[7:], pdu)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func exception(fc uint8, code uint8) []byte {
	return []byte{fc | 0x80, code}
}

func (s *testServer) respond(fc uint8, data []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	addr := binary.BigEndian.Uint16(data[0:2])
	arg := binary.BigEndian.Uint16(data[2:4])

	switch fc {
	case FuncCodeReadCoils, FuncCodeReadDiscreteInputs:
		bits := s.coils
		if fc == FuncCodeReadDiscreteInputs {
			bits = s.discrete
		}
		out := make([]byte, 2+(int(arg)+7)/8)
		out[0] = fc
		out[1] = byte((int(arg) + 7) / 8)
		for i := 0; i < int(arg); i++ {
			v, ok := bits[addr+uint16(i)]
			if !ok {
				return exception(fc, 0x02)
			}
			if v {
				out[2+i/8] |= 1 << (uint(i) % 8)
			}
		}
		return out

	case FuncCodeReadHoldingRegisters, FuncCodeReadInputRegisters:
		regs := s.holding
		if fc == FuncCodeReadInputRegisters {
			regs = s.input
		}
		out := make([]byte, 2+2*int(arg))
		out[0] = fc
		out[1] = byte(2 * arg)
		for i := 0; i < int(arg); i++ {
			v, ok := regs[addr+uint16(i)]
			if !ok {
				return exception(fc, 0x02)
			}
			binary.BigEndian.PutUint16(out[2+2*i:], v)
		}
		return out

	case FuncCodeWriteSingleCoil:
		if _, ok := s.coils[addr]; !ok {
			return exception(fc, 0x02)
		}
		s.coils[addr] = arg == 0xFF00
		return append([]byte{fc}, data[:4]...)

	case FuncCodeWriteSingleRegister:
		if _, ok := s.holding[addr]; !ok {
			return exception(fc, 0x02)
		}
		s.holding[addr] = arg
		return append([]byte{fc}, data[:4]...)
	}

	return exception(fc, 0x01)
}

func (s *testServer) coil(addr uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coils[addr]
}

func (s *testServer) holdingReg(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holding[addr]
}

func (s *testServer) setInput(addr uint16, v uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input[addr] = v
}

func (s *testServer) setDiscrete(addr uint16, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discrete[addr] = v
}

func (s *testServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
