package table

var ReadBits = readBits
