// Package channel provides the raw duplex byte channel that the loris link
// layer runs on: a UART device configured for 8N1 raw mode, or a pair of named
// pipes that emulate a full-duplex radio link between two local processes.
//
// # Duplex role negotiation
//
// Opening a named pipe for reading blocks until some process opens it for
// writing, and vice versa. When two peers emulate a duplex link with two
// pipes, both must agree on an open order or they deadlock. Each endpoint has
// a numeric address:
//
//   - even address (RoleResponder): open the receive pipe, then the transmit pipe.
//   - odd address (RoleInitiator): open the transmit pipe, then the receive pipe.
//
// Two endpoints with opposite parity always complete initialisation. Two
// endpoints with the same parity block forever in OpenPipePair; this is a
// configuration error and is not detected.
//
// # Read disciplines
//
// Read performs exactly one underlying read and may return fewer bytes than
// requested (the "UpTo" discipline). ReadFull loops until the buffer is full
// or a hard error occurs (the "Until" discipline).
package channel
