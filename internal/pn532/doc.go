// Package pn532 drives an NXP PN532 reader over its high speed UART
// interface and exposes it as a card.Transport for MIFARE Classic cards.
//
// Only the commands the stations need are implemented: firmware version,
// SAM configuration, passive target detection at 106 kbps type A, and
// InDataExchange carrying MIFARE authenticate, read, and write.
package pn532
