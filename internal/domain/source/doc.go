/*
Package source models user source bundles and normalizes them per runtime
profile.

# Overview

A Bundle is one snapshot of the editor facets (markup, style, script and
component source). Normalize adapts it to a Profile:

  - leaked markup (code fences, <script> wrappers, document tags) is stripped
    from script facets
  - imports of a small closed set of libraries are rewritten into bindings of
    the globals their classic builds define; other imports become comments
  - closing </script and </style sequences are escaped before embedding

All classification is regex based and table driven (leakRules, shimTargets).
Normalize never fails; it reports Warnings instead.
*/
package source
