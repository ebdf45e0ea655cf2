package channel

// Connector is the Endpoint Connector, grounded on
// original_source/communication/channel-endpoint-connector.c. It bridges the
// bottom of a client-side HMAC chain to the top of the very same chain acting
// as a mirrored server-side chain, via a non-owning forward reference set
// after the chain is built: an owning parent plus a weak back-reference,
// rather than two separately constructed chains.
type Connector struct {
	server   Channel // owned: the inner Loopback Server Channel
	endpoint Channel // non-owning: the top of the (possibly the same) HMAC chain

	clientBytes []byte
	hasClient   bool
	serverBytes []byte
	hasServer   bool
}

// NewConnector returns a Connector owning server. SetEndpoint must be called
// before any operation is used; the identifier parser does this once the
// full HMAC chain wrapping the connector has been built.
func NewConnector(server Channel) *Connector {
	return &Connector{server: server}
}

// SetEndpoint installs the non-owning forward reference to the top of the
// mirrored server-side chain.
func (c *Connector) SetEndpoint(endpoint Channel) {
	c.endpoint = endpoint
}

func (c *Connector) ready() bool {
	return c.server != nil && c.endpoint != nil
}

// ClientSend parks bytes in the server-direction buffer, then drains that
// buffer by calling ServerRecv on the forward endpoint — which
// recurses back down to this connector's own ServerRecv, handing the plain
// message to the inner Loopback Server Channel's ClientSend.
func (c *Connector) ClientSend(bytes []byte) error {
	if !c.ready() {
		return errArgument("connector: endpoint not set")
	}
	if len(bytes) == 0 {
		return errArgument("connector: empty message")
	}
	if c.hasServer {
		return errBusy()
	}
	c.serverBytes = bytes
	c.hasServer = true

	plain, err := c.endpoint.ServerRecv()
	c.serverBytes = nil
	c.hasServer = false
	if err != nil {
		return err
	}
	return c.server.ClientSend(plain)
}

// ClientRecv pulls the inner server's reply, forwards it up through the
// mirrored server-side chain via ServerSend on the forward endpoint (which
// recurses back down to this connector's own ServerSend), then returns and
// clears the resulting client-direction buffer.
func (c *Connector) ClientRecv() ([]byte, error) {
	if !c.ready() {
		return nil, errArgument("connector: endpoint not set")
	}
	reply, err := c.server.ClientRecv()
	if err != nil {
		return nil, err
	}
	if err := c.endpoint.ServerSend(reply); err != nil {
		return nil, err
	}
	if !c.hasClient {
		return nil, errBusy()
	}
	out := c.clientBytes
	c.clientBytes = nil
	c.hasClient = false
	return out, nil
}

// ServerRecv returns and clears the server-direction buffer filled by
// ClientSend; it is the read side the mirrored server-side chain drains.
func (c *Connector) ServerRecv() ([]byte, error) {
	if !c.ready() {
		return nil, errArgument("connector: endpoint not set")
	}
	if !c.hasServer {
		return nil, errBusy()
	}
	out := c.serverBytes
	c.serverBytes = nil
	c.hasServer = false
	return out, nil
}

// ServerSend stores bytes into the client-direction buffer; it is the write
// side the mirrored server-side chain uses to hand the reply back.
func (c *Connector) ServerSend(bytes []byte) error {
	if !c.ready() {
		return errArgument("connector: endpoint not set")
	}
	if len(bytes) == 0 {
		return errArgument("connector: empty message")
	}
	if c.hasClient {
		return errBusy()
	}
	c.clientBytes = bytes
	c.hasClient = true
	return nil
}

// Close frees the owned inner server channel. The forward endpoint is not
// owned by the connector — it is the top of the client-side stack that wraps
// it — so Close never touches it.
func (c *Connector) Close() error {
	return c.server.Close()
}
