package appdu

// Parser reassembles APPDU messages from an arbitrarily fragmented octet
// stream. It holds at most one header and one payload at a time, so memory
// stays bounded by MaxAPPDUSize no matter how the transport chunks reads.
//
// A Parser is not safe for concurrent use; each connection owns one.
type Parser struct {
	headerBuf  [HeaderLen]byte
	headerLen  int
	octetsLeft int
	errCount   int
	cur        Message
}

// NewParser returns a parser awaiting the first header octet.
func NewParser() *Parser {
	p := &Parser{}
	p.cur.payload = make([]byte, 0, MaxPayload)
	p.cur.SetNop()
	return p
}

// Consume processes one octet from the stream. It returns nil until a
// complete, valid message has been accumulated, then returns that message.
// The returned message is an independent copy owned by the caller; it stays
// valid across later Consume calls.
//
// A header that fails validation is counted, discarded whole, and parsing
// resumes at the next octet.
func (p *Parser) Consume(octet byte) *Message {
	if p.octetsLeft > 0 {
		return p.consumePayload(octet)
	}
	return p.consumeHeader(octet)
}

// Clear returns the parser to its freshly constructed state: empty buffers,
// zero error count, awaiting a header.
func (p *Parser) Clear() {
	p.headerLen = 0
	p.octetsLeft = 0
	p.errCount = 0
	p.cur.Clear()
}

// ErrorCount reports how many malformed headers were discarded since the
// parser was constructed or last cleared.
func (p *Parser) ErrorCount() int {
	return p.errCount
}

func (p *Parser) consumeHeader(octet byte) *Message {
	p.headerBuf[p.headerLen] = octet
	p.headerLen++
	if p.headerLen < HeaderLen {
		return nil
	}
	p.headerLen = 0

	h := decodeHeader(p.headerBuf[:])
	if err := h.validate(); err != nil {
		// Discard the whole header window and resynchronize byte by byte.
		p.errCount++
		return nil
	}

	p.cur.header = h
	p.cur.payload = p.cur.payload[:0]
	if h.PayloadLength == 0 {
		return p.cur.Clone()
	}
	p.octetsLeft = int(h.PayloadLength)
	return nil
}

func (p *Parser) consumePayload(octet byte) *Message {
	p.cur.payload = append(p.cur.payload, octet)
	p.octetsLeft--
	if p.octetsLeft > 0 {
		return nil
	}
	return p.cur.Clone()
}
