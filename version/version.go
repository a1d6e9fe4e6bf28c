// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package version

const defaultConfiguratorVersion = "1.4.0"

// Configurator is the exported version of defaultConfiguratorVersion.
const Configurator = defaultConfiguratorVersion
