// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

/*
Package sheet edits the spreadsheet tables stored in ADF sheet-books.

A sheet-book root holds Sheet, Cell, BoolData, StringData and ValueData
arrays. A sheet slot names a cell definition; the definition names a type
and an index into the pool of that type. Definitions and pool entries are
shared, so changing one cell safely means choosing among several rewrites.

Book.Plan walks a fixed sequence of strategies and returns the first that
applies:

  - 0   nothing to do
  - 1a  point the slot at a definition that already shows the value
  - 1b  repoint an unshared definition at a matching pool entry
  - 1c  claim an unused definition for a matching pool entry
  - 2a  overwrite an unshared pool entry in place
  - 2b  fill an unused pool entry for an unshared definition
  - 2c  fill an unused pool entry and claim an unused definition
  - 3a  repoint an unshared definition at the closest float
  - 3b  point the slot at a definition showing the closest float
  - 3c  repoint the shared definition at the closest float (changes other cells)
  - 4   with Force, overwrite the shared pool entry
  - 5   fail with CannotRealizeError

Every plan is a list of patch.Write values. Commit folds a plan into the
book so that the next plan in a batch sees it; ApplyCoordinateUpdates does
both for a list of edits and writes once at the end.
*/
package sheet
